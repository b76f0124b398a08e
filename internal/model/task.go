package model

import "time"

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is one execution attempt of an order's AI workload against the
// external backend. InputData is a snapshot taken at creation time and is
// never re-read from the order. At most one task per order may be in a
// non-terminal state; the task service enforces that.
type Task struct {
	ID                  string     `gorm:"primaryKey;size:36" json:"id"`
	OrderID             string     `gorm:"size:36;not null;index:idx_order_status" json:"order_id"`
	AIServiceID         string     `gorm:"column:ai_service_id;size:64;not null" json:"ai_service_id"`
	ExternalTaskID      string     `gorm:"size:128" json:"external_task_id,omitempty"`
	ExternalExecutionID string     `gorm:"size:128;index" json:"external_execution_id,omitempty"`
	Status              TaskStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_order_status" json:"status"`
	InputData           string     `gorm:"type:text;not null" json:"input_data"`
	OutputData          string     `gorm:"type:text" json:"output_data,omitempty"`
	ErrorMessage        string     `gorm:"size:1024" json:"error_message,omitempty"`
	RetryCount          int        `gorm:"default:0" json:"retry_count"`
	ExecutionTime       float64    `json:"execution_time,omitempty"`
	CreatedAt           time.Time  `gorm:"index" json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (Task) TableName() string {
	return "tasks"
}

func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

func (s TaskStatus) Active() bool {
	return s == TaskStatusPending || s == TaskStatusRunning
}
