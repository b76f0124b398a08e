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

// Reconciler maps the backend's execution state onto local task state. It is
// the read path of the orchestration: poll handlers and the stale sweep both
// funnel through Sync.
type Reconciler struct {
	tasks    *TaskService
	orders   *OrderService
	resolver ConfigResolver
	backend  aiclient.Backend
}

func NewReconciler(tasks *TaskService, orders *OrderService, resolver ConfigResolver, backend aiclient.Backend) *Reconciler {
	return &Reconciler{
		tasks:    tasks,
		orders:   orders,
		resolver: resolver,
		backend:  backend,
	}
}

// Sync refreshes one task from the backend. Terminal tasks are returned as
// stored without any backend call, which makes repeated polling idempotent.
// A backend failure surfaces as a dependency error and leaves the task
// untouched; callers retry the poll.
func (r *Reconciler) Sync(ctx context.Context, task *model.Task) (*model.Task, error) {
	if task.Status.Terminal() {
		return task, nil
	}
	if task.ExternalExecutionID == "" {
		// Not dispatched yet; nothing to reconcile against.
		return task, nil
	}

	svcCfg, err := r.resolver.Resolve(ctx, task.AIServiceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependency, err, "resolve service for sync of task %s", task.ID)
	}
	cfg := aiclient.Config{BaseURL: svcCfg.BaseURL, APIKey: svcCfg.APIKey, Timeout: svcCfg.Timeout}

	res, err := r.backend.QueryStatus(ctx, cfg, task.ExternalExecutionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependency, err, "query execution %s", task.ExternalExecutionID)
	}

	switch res.State {
	case aiclient.StateRunning:
		if err := r.tasks.Touch(ctx, task); err != nil {
			return nil, err
		}
		return task, nil

	case aiclient.StateSucceeded:
		output := res.Outputs
		if output == "" {
			output = "{}"
		}
		updated, err := r.tasks.Transition(ctx, task, model.TaskStatusCompleted, TransitionFields{
			OutputData: output,
		})
		if err != nil {
			return nil, err
		}
		r.advanceOrder(ctx, updated.OrderID, model.OrderStatusCompleted)
		return updated, nil

	case aiclient.StateFailed:
		msg := res.Error
		if msg == "" {
			msg = "execution failed on backend"
		}
		return r.tasks.Transition(ctx, task, model.TaskStatusFailed, TransitionFields{
			ErrorMessage: msg,
		})

	case aiclient.StateStopped:
		return r.tasks.Transition(ctx, task, model.TaskStatusCancelled, TransitionFields{
			ErrorMessage: "execution stopped on backend",
		})

	case aiclient.StateNotFound:
		return r.tasks.Transition(ctx, task, model.TaskStatusFailed, TransitionFields{
			ErrorMessage: "execution reference lost",
		})
	}

	return nil, apperr.New(apperr.KindDependency, "unrecognized execution state %q", res.State)
}

// advanceOrder moves the owning order along after a successful execution.
// Best effort: an order stuck outside the expected status only gets a log
// line, the task result stands either way.
func (r *Reconciler) advanceOrder(ctx context.Context, orderID string, target model.OrderStatus) {
	if _, err := r.orders.UpdateStatus(ctx, orderID, target); err != nil {
		logger.Warn(fmt.Sprintf("failed to advance order to %s", target),
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}
