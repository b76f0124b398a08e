package service

import (
	"context"
	"fmt"
	"time"

	"orderflow/internal/aiclient"
	"orderflow/internal/apperr"
	"orderflow/internal/metrics"
	"orderflow/internal/model"
	"orderflow/pkg/logger"

	"go.uber.org/zap"
)

const (
	DispatchOutcomeRunning   = "running"
	DispatchOutcomeFailed    = "failed"
	DispatchOutcomePermanent = "permanent"
)

// Dispatcher submits a pending task's input to the external backend and
// records the returned handles. Transient submission failures are retried
// with exponential backoff; permanent ones fail the task immediately.
type Dispatcher struct {
	tasks          *TaskService
	resolver       ConfigResolver
	backend        aiclient.Backend
	maxRetries     int
	retryDelay     time.Duration
	requestTimeout time.Duration
	observer       metrics.Observer
}

func NewDispatcher(tasks *TaskService, resolver ConfigResolver, backend aiclient.Backend, maxRetries int, retryDelay, requestTimeout time.Duration, observer metrics.Observer) *Dispatcher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Dispatcher{
		tasks:          tasks,
		resolver:       resolver,
		backend:        backend,
		maxRetries:     maxRetries,
		retryDelay:     retryDelay,
		requestTimeout: requestTimeout,
		observer:       observer,
	}
}

// Submit drives the task to running or failed. The returned task reflects the
// outcome; a non-nil error means the outcome could not be recorded at all
// (store failure, illegal state), not that the backend rejected the job.
func (d *Dispatcher) Submit(ctx context.Context, task *model.Task) (*model.Task, error) {
	// Re-read so a stale caller copy cannot start a duplicate remote job.
	task, err := d.tasks.Get(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskStatusPending {
		return nil, &apperr.InvalidTaskTransitionError{
			From: string(task.Status), To: string(model.TaskStatusRunning),
			Reason: "only pending tasks can be dispatched",
		}
	}

	start := time.Now()
	defer func() {
		d.observer.ObserveDispatchLatency(time.Since(start).Seconds())
	}()

	svcCfg, err := d.resolver.Resolve(ctx, task.AIServiceID)
	if err != nil {
		// Unresolvable configuration is a permanent failure.
		d.observer.DispatchResult(DispatchOutcomePermanent)
		return d.fail(ctx, task, fmt.Sprintf("service configuration: %v", err))
	}
	cfg := aiclient.Config{
		BaseURL: svcCfg.BaseURL,
		APIKey:  svcCfg.APIKey,
		Timeout: svcCfg.Timeout,
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.requestTimeout
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		res, err := d.backend.Start(ctx, cfg, task.InputData)
		if err == nil {
			updated, terr := d.tasks.Transition(ctx, task, model.TaskStatusRunning, TransitionFields{
				ExternalTaskID:      res.TaskID,
				ExternalExecutionID: res.ExecutionID,
			})
			if terr != nil {
				return nil, terr
			}
			d.observer.DispatchResult(DispatchOutcomeRunning)
			logger.Info("task dispatched",
				zap.String("task_id", task.ID),
				zap.String("external_execution_id", res.ExecutionID),
				zap.Int("retry_count", task.RetryCount))
			return updated, nil
		}
		lastErr = err

		if !aiclient.IsTransient(err) {
			logger.Warn("dispatch rejected permanently",
				zap.String("task_id", task.ID), zap.Error(err))
			d.observer.DispatchResult(DispatchOutcomePermanent)
			return d.fail(ctx, task, fmt.Sprintf("dispatch rejected: %v", err))
		}
		if attempt >= d.maxRetries {
			break
		}

		if rerr := d.tasks.IncrementRetry(ctx, task); rerr != nil {
			return nil, rerr
		}
		d.observer.DispatchRetry()
		backoff := d.retryDelay * (1 << attempt)
		logger.Warn("dispatch attempt failed, retrying",
			zap.String("task_id", task.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			d.observer.DispatchResult(DispatchOutcomeFailed)
			return d.fail(ctx, task, fmt.Sprintf("dispatch aborted: %v", ctx.Err()))
		case <-time.After(backoff):
		}
	}

	logger.Error("dispatch retries exhausted",
		zap.String("task_id", task.ID),
		zap.Int("retry_count", task.RetryCount),
		zap.Error(lastErr))
	d.observer.DispatchResult(DispatchOutcomeFailed)
	return d.fail(ctx, task, fmt.Sprintf("dispatch failed after %d attempts: %v", d.maxRetries+1, lastErr))
}

func (d *Dispatcher) fail(ctx context.Context, task *model.Task, msg string) (*model.Task, error) {
	// Context may already be done; the failure must still be recorded.
	return d.tasks.Transition(context.WithoutCancel(ctx), task, model.TaskStatusFailed, TransitionFields{
		ErrorMessage: msg,
	})
}
