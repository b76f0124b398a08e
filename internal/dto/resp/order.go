package resp

import (
	"encoding/json"
	"time"

	"orderflow/internal/model"
)

type OrderItem struct {
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

type OrderListResponse struct {
	Data  []OrderItem `json:"data"`
	Total int64       `json:"total"`
}

func NewOrderItem(o *model.Order) OrderItem {
	return OrderItem{
		ID:          o.ID,
		UserID:      o.UserID,
		AIServiceID: o.AIServiceID,
		ServiceData: json.RawMessage(o.ServiceData),
		AmountCents: o.AmountCents,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		PaidAt:      o.PaidAt,
		CompletedAt: o.CompletedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}
