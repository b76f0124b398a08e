package req

import "encoding/json"

type CreateOrderRequest struct {
	AIServiceID string          `json:"ai_service_id" binding:"required"`
	ServiceData json.RawMessage `json:"service_data" binding:"required"`
	AmountCents int64           `json:"amount_cents" binding:"required"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type GetOrderRequest struct {
	ID string `uri:"id" binding:"required"`
}
