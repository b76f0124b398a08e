package v1

import (
	"encoding/json"
	"time"
)

// Order statuses as they appear on the wire.
const (
	OrderPending    = "pending"
	OrderPaid       = "paid"
	OrderProcessing = "processing"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"
	OrderRefunded   = "refunded"
)

// Task statuses as they appear on the wire.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskCancelled = "cancelled"
)

type Order struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	AIServiceID string          `json:"ai_service_id"`
	ServiceData json.RawMessage `json:"service_data"`
	AmountCents int64           `json:"amount_cents"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type OrderList struct {
	Data  []Order `json:"data"`
	Total int64   `json:"total"`
}

type Task struct {
	ID                  string          `json:"id"`
	OrderID             string          `json:"order_id"`
	AIServiceID         string          `json:"ai_service_id"`
	ExternalTaskID      string          `json:"external_task_id,omitempty"`
	ExternalExecutionID string          `json:"external_execution_id,omitempty"`
	Status              string          `json:"status"`
	OutputData          json.RawMessage `json:"output_data,omitempty"`
	ErrorMessage        string          `json:"error_message,omitempty"`
	RetryCount          int             `json:"retry_count"`
	ExecutionTime       float64         `json:"execution_time,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Terminal reports whether a task status will never change again.
func (t *Task) Terminal() bool {
	switch t.Status {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}
