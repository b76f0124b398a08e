package model

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Order is a purchased instance of an AI service. AmountCents and ServiceData
// never mutate after creation; status moves only through the order state
// machine.
type Order struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	UserID      string      `gorm:"size:36;not null;index:idx_user_status" json:"user_id"`
	AIServiceID string      `gorm:"column:ai_service_id;size:64;not null" json:"ai_service_id"`
	ServiceData string      `gorm:"type:text;not null" json:"service_data"`
	AmountCents int64       `gorm:"not null" json:"amount_cents"`
	Status      OrderStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_user_status" json:"status"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
	PaidAt      *time.Time  `json:"paid_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}
