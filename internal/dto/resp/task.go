package resp

import (
	"encoding/json"
	"time"

	"orderflow/internal/model"
)

type TaskItem struct {
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

func NewTaskItem(t *model.Task) TaskItem {
	item := TaskItem{
		ID:                  t.ID,
		OrderID:             t.OrderID,
		AIServiceID:         t.AIServiceID,
		ExternalTaskID:      t.ExternalTaskID,
		ExternalExecutionID: t.ExternalExecutionID,
		Status:              string(t.Status),
		ErrorMessage:        t.ErrorMessage,
		RetryCount:          t.RetryCount,
		ExecutionTime:       t.ExecutionTime,
		CreatedAt:           t.CreatedAt,
		StartedAt:           t.StartedAt,
		CompletedAt:         t.CompletedAt,
		UpdatedAt:           t.UpdatedAt,
	}
	if t.OutputData != "" {
		item.OutputData = json.RawMessage(t.OutputData)
	}
	return item
}
