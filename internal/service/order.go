package service

import (
	"context"
	"encoding/json"
	"time"

	"orderflow/internal/apperr"
	"orderflow/internal/model"
	"orderflow/internal/repository"
	"orderflow/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderService owns order rows. All status writes go through the order state
// machine; nothing else is allowed to touch Order.Status.
type OrderService struct {
	db        *gorm.DB
	orderRepo repository.OrderInterface
	taskRepo  repository.TaskInterface
	notifier  Notifier
}

func NewOrderService(db *gorm.DB, orderRepo repository.OrderInterface, taskRepo repository.TaskInterface, notifier Notifier) *OrderService {
	return &OrderService{
		db:        db,
		orderRepo: orderRepo,
		taskRepo:  taskRepo,
		notifier:  notifier,
	}
}

func (s *OrderService) Create(ctx context.Context, userID, aiServiceID string, serviceData json.RawMessage, amountCents int64) (*model.Order, error) {
	if userID == "" || aiServiceID == "" {
		return nil, apperr.New(apperr.KindValidation, "user_id and ai_service_id are required")
	}
	if amountCents <= 0 {
		return nil, apperr.New(apperr.KindValidation, "amount_cents must be positive")
	}
	if !json.Valid(serviceData) {
		return nil, apperr.New(apperr.KindValidation, "service_data must be valid JSON")
	}

	now := time.Now()
	order := &model.Order{
		ID:          uuid.New().String(),
		UserID:      userID,
		AIServiceID: aiServiceID,
		ServiceData: string(serviceData),
		AmountCents: amountCents,
		Status:      model.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "create order")
	}
	logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("ai_service_id", aiServiceID))
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, id string) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "get order %s", id)
	}
	if order == nil {
		return nil, apperr.New(apperr.KindNotFound, "order %s not found", id)
	}
	return order, nil
}

func (s *OrderService) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Order, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	orders, total, err := s.orderRepo.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindPersistence, err, "list orders")
	}
	return orders, total, nil
}

// UpdateStatus applies one state-machine transition under a row lock and
// persists the result. Terminal transitions fire the notifier after commit.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, requested model.OrderStatus) (*model.Order, error) {
	var updated *model.Order

	err := transact(ctx, s.db, func(tx *gorm.DB) error {
		txOrders := s.orderRepo.WithTx(tx)
		order, err := txOrders.GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "lock order %s", id)
		}
		if order == nil {
			return apperr.New(apperr.KindNotFound, "order %s not found", id)
		}
		if err := TransitionOrder(order, requested); err != nil {
			return err
		}
		if err := txOrders.Save(ctx, order); err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "save order %s", id)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("order status updated",
		zap.String("order_id", updated.ID),
		zap.String("status", string(updated.Status)))

	if updated.Status.Terminal() {
		s.notifier.OrderTerminal(ctx, updated)
	}
	return updated, nil
}

// Delete removes the order aggregate: the order row and every owned task row
// go in one transaction, never via a database-level cascade.
func (s *OrderService) Delete(ctx context.Context, id string) error {
	return transact(ctx, s.db, func(tx *gorm.DB) error {
		txOrders := s.orderRepo.WithTx(tx)
		order, err := txOrders.GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "lock order %s", id)
		}
		if order == nil {
			return apperr.New(apperr.KindNotFound, "order %s not found", id)
		}
		if err := s.taskRepo.WithTx(tx).DeleteByOrderID(ctx, id); err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "delete tasks of order %s", id)
		}
		if err := txOrders.Delete(ctx, id); err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "delete order %s", id)
		}
		return nil
	})
}

func (s *OrderService) Health(ctx context.Context) error {
	return s.orderRepo.PingContext(ctx)
}
