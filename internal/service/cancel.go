package service

import (
	"context"
	"fmt"

	"orderflow/internal/aiclient"
	"orderflow/internal/apperr"
	"orderflow/internal/model"
	"orderflow/pkg/logger"

	"go.uber.org/zap"
)

// Canceller propagates a stop request to the backend and to local state.
// Local cancellation is authoritative: the backend call is best effort and a
// failure there is recorded as an annotation, never as a blocker.
type Canceller struct {
	tasks    *TaskService
	orders   *OrderService
	resolver ConfigResolver
	backend  aiclient.Backend
}

func NewCanceller(tasks *TaskService, orders *OrderService, resolver ConfigResolver, backend aiclient.Backend) *Canceller {
	return &Canceller{
		tasks:    tasks,
		orders:   orders,
		resolver: resolver,
		backend:  backend,
	}
}

func (c *Canceller) Cancel(ctx context.Context, task *model.Task) (*model.Task, error) {
	// Re-read so the guard and the stop call reflect the stored state, not a
	// stale caller copy.
	task, err := c.tasks.Get(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if !task.Status.Active() {
		return nil, &apperr.InvalidTaskTransitionError{
			From: string(task.Status), To: string(model.TaskStatusCancelled),
			Reason: "only pending or running tasks can be cancelled",
		}
	}

	var annotation string
	if task.ExternalTaskID != "" {
		if err := c.stopRemote(ctx, task); err != nil {
			annotation = fmt.Sprintf("backend stop failed: %v", err)
			logger.Warn("backend did not acknowledge cancellation",
				zap.String("task_id", task.ID), zap.Error(err))
		}
	}

	cancelled, err := c.tasks.Transition(ctx, task, model.TaskStatusCancelled, TransitionFields{
		ErrorMessage: annotation,
	})
	if err != nil {
		return nil, err
	}

	// Propagate to the owning order when it is still in flight. Best effort:
	// the task cancellation stands regardless.
	if _, oerr := c.orders.UpdateStatus(ctx, cancelled.OrderID, model.OrderStatusCancelled); oerr != nil {
		logger.Debug("order not moved to cancelled",
			zap.String("order_id", cancelled.OrderID),
			zap.Error(oerr))
	}
	return cancelled, nil
}

func (c *Canceller) stopRemote(ctx context.Context, task *model.Task) error {
	svcCfg, err := c.resolver.Resolve(ctx, task.AIServiceID)
	if err != nil {
		return err
	}
	cfg := aiclient.Config{BaseURL: svcCfg.BaseURL, APIKey: svcCfg.APIKey, Timeout: svcCfg.Timeout}
	return c.backend.Stop(ctx, cfg, task.ExternalTaskID)
}
