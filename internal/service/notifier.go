package service

import (
	"context"
	"encoding/json"
	"time"

	"orderflow/internal/model"
	v1 "orderflow/pkg/api/v1"
	"orderflow/pkg/logger"
	"orderflow/pkg/trace"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier is the fire-and-forget hook invoked after terminal order/task
// transitions. Implementations must never propagate failures back into the
// orchestration call.
type Notifier interface {
	OrderTerminal(ctx context.Context, order *model.Order)
	TaskTerminal(ctx context.Context, task *model.Task)
}

const eventChannel = "orderflow:events"

// RedisNotifier publishes terminal events on a redis pub/sub channel. Publish
// errors are logged and dropped.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) OrderTerminal(ctx context.Context, order *model.Order) {
	n.publish(ctx, v1.Event{
		Kind:       v1.EventOrderTerminal,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		OccurredAt: time.Now(),
	})
}

func (n *RedisNotifier) TaskTerminal(ctx context.Context, task *model.Task) {
	n.publish(ctx, v1.Event{
		Kind:       v1.EventTaskTerminal,
		OrderID:    task.OrderID,
		TaskID:     task.ID,
		Status:     string(task.Status),
		Error:      task.ErrorMessage,
		OccurredAt: time.Now(),
	})
}

func (n *RedisNotifier) publish(ctx context.Context, ev v1.Event) {
	if tid := trace.ID(ctx); tid != "" {
		ev.TraceID = tid
	}
	b, err := json.Marshal(ev)
	if err != nil {
		logger.Error("failed to encode notification event", zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := n.rdb.Publish(pubCtx, eventChannel, b).Err(); err != nil {
		logger.Warn("failed to publish notification event",
			zap.String("kind", string(ev.Kind)),
			zap.String("order_id", ev.OrderID),
			zap.Error(err))
	}
}

// NopNotifier is used in tests and when notifications are disabled.
type NopNotifier struct{}

func (NopNotifier) OrderTerminal(context.Context, *model.Order) {}
func (NopNotifier) TaskTerminal(context.Context, *model.Task)   {}
