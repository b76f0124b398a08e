package service

import (
	"context"
	"encoding/json"
	"time"

	"orderflow/internal/apperr"
	"orderflow/internal/metrics"
	"orderflow/internal/model"
	"orderflow/internal/repository"
	"orderflow/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var taskTransitions = map[model.TaskStatus][]model.TaskStatus{
	model.TaskStatusPending: {model.TaskStatusRunning, model.TaskStatusFailed, model.TaskStatusCancelled},
	model.TaskStatusRunning: {model.TaskStatusCompleted, model.TaskStatusFailed, model.TaskStatusCancelled},
}

// TransitionFields carries the status-specific payload of a task transition.
type TransitionFields struct {
	ExternalTaskID      string
	ExternalExecutionID string
	OutputData          string
	ErrorMessage        string
}

// TaskService owns task rows and the at-most-one-active-task-per-order
// invariant. It is the only component allowed to write Task.Status.
type TaskService struct {
	db       *gorm.DB
	taskRepo repository.TaskInterface
	notifier Notifier
	observer metrics.Observer

	// orderLocks serializes CreateForOrder per order within this process;
	// the row lock inside the transaction covers other instances.
	orderLocks keyedMutex
}

func NewTaskService(db *gorm.DB, taskRepo repository.TaskInterface, notifier Notifier, observer metrics.Observer) *TaskService {
	return &TaskService{
		db:       db,
		taskRepo: taskRepo,
		notifier: notifier,
		observer: observer,
	}
}

// CreateForOrder inserts a new pending task for the order unless one is
// already active, in which case it fails with TaskAlreadyActive referencing
// the existing task. inputData is deep-copied so later order mutations can
// never leak into a dispatched task.
func (s *TaskService) CreateForOrder(ctx context.Context, orderID, aiServiceID string, inputData json.RawMessage) (*model.Task, error) {
	if orderID == "" || aiServiceID == "" {
		return nil, apperr.New(apperr.KindValidation, "order_id and ai_service_id are required")
	}
	if !json.Valid(inputData) {
		return nil, apperr.New(apperr.KindValidation, "input_data must be valid JSON")
	}

	unlock := s.orderLocks.Lock(orderID)
	defer unlock()

	snapshot := make([]byte, len(inputData))
	copy(snapshot, inputData)

	now := time.Now()
	task := &model.Task{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		AIServiceID: aiServiceID,
		Status:      model.TaskStatusPending,
		InputData:   string(snapshot),
		RetryCount:  0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := transact(ctx, s.db, func(tx *gorm.DB) error {
		txTasks := s.taskRepo.WithTx(tx)
		existing, err := txTasks.GetActiveByOrderID(ctx, orderID)
		if err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "check active task for order %s", orderID)
		}
		if existing != nil {
			return &apperr.TaskAlreadyActiveError{TaskID: existing.ID, Status: string(existing.Status)}
		}
		if err := txTasks.Create(ctx, task); err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "create task for order %s", orderID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("order_id", orderID))
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, id string) (*model.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "get task %s", id)
	}
	if task == nil {
		return nil, apperr.New(apperr.KindNotFound, "task %s not found", id)
	}
	return task, nil
}

func (s *TaskService) ListByOrder(ctx context.Context, orderID string) ([]model.Task, error) {
	tasks, err := s.taskRepo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "list tasks of order %s", orderID)
	}
	return tasks, nil
}

// Transition applies one task edge with its required fields and persists the
// result. The stored row is re-read under a row lock and the edge is validated
// against that, so a caller holding a stale copy can never overwrite a state
// written by a concurrent caller. Terminal transitions fire the notifier after
// commit.
func (s *TaskService) Transition(ctx context.Context, task *model.Task, requested model.TaskStatus, fields TransitionFields) (*model.Task, error) {
	var updated *model.Task

	err := transact(ctx, s.db, func(tx *gorm.DB) error {
		txTasks := s.taskRepo.WithTx(tx)
		current, err := txTasks.GetByIDForUpdate(ctx, task.ID)
		if err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "lock task %s", task.ID)
		}
		if current == nil {
			return apperr.New(apperr.KindNotFound, "task %s not found", task.ID)
		}
		if err := applyTaskTransition(current, requested, fields); err != nil {
			return err
		}
		if err := txTasks.Save(ctx, current); err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "save task %s", task.ID)
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.observer.TaskTransition(string(requested))
	logger.Info("task status updated",
		zap.String("task_id", updated.ID),
		zap.String("order_id", updated.OrderID),
		zap.String("status", string(updated.Status)))

	if updated.Status.Terminal() {
		s.notifier.TaskTerminal(ctx, updated)
	}
	return updated, nil
}

// IncrementRetry bumps retryCount after a failed submission attempt. The row
// is re-read under lock; a task that left pending in the meantime gets a
// conflict back so the dispatch loop stops.
func (s *TaskService) IncrementRetry(ctx context.Context, task *model.Task) error {
	return transact(ctx, s.db, func(tx *gorm.DB) error {
		txTasks := s.taskRepo.WithTx(tx)
		current, err := txTasks.GetByIDForUpdate(ctx, task.ID)
		if err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "lock task %s", task.ID)
		}
		if current == nil {
			return apperr.New(apperr.KindNotFound, "task %s not found", task.ID)
		}
		if current.Status != model.TaskStatusPending {
			return apperr.New(apperr.KindConflict, "task %s is %s, not pending", task.ID, current.Status)
		}
		current.RetryCount++
		current.UpdatedAt = time.Now()
		if err := txTasks.Save(ctx, current); err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "save task %s", task.ID)
		}
		task.RetryCount = current.RetryCount
		return nil
	})
}

// Touch refreshes updatedAt without a status change; used when the backend
// still reports the execution as in progress. A task that turned terminal
// concurrently is left untouched, the caller's copy is refreshed either way.
func (s *TaskService) Touch(ctx context.Context, task *model.Task) error {
	return transact(ctx, s.db, func(tx *gorm.DB) error {
		txTasks := s.taskRepo.WithTx(tx)
		current, err := txTasks.GetByIDForUpdate(ctx, task.ID)
		if err != nil {
			return apperr.Wrap(apperr.KindPersistence, err, "lock task %s", task.ID)
		}
		if current == nil {
			return apperr.New(apperr.KindNotFound, "task %s not found", task.ID)
		}
		if !current.Status.Terminal() {
			current.UpdatedAt = time.Now()
			if err := txTasks.Save(ctx, current); err != nil {
				return apperr.Wrap(apperr.KindPersistence, err, "save task %s", task.ID)
			}
		}
		*task = *current
		return nil
	})
}

func applyTaskTransition(task *model.Task, requested model.TaskStatus, fields TransitionFields) error {
	from := task.Status
	if from.Terminal() {
		return &apperr.InvalidTaskTransitionError{From: string(from), To: string(requested), Reason: "task is terminal"}
	}

	legal := false
	for _, s := range taskTransitions[from] {
		if s == requested {
			legal = true
			break
		}
	}
	if !legal {
		return &apperr.InvalidTaskTransitionError{From: string(from), To: string(requested)}
	}

	now := time.Now()
	switch requested {
	case model.TaskStatusRunning:
		if fields.ExternalTaskID == "" || fields.ExternalExecutionID == "" {
			return &apperr.InvalidTaskTransitionError{From: string(from), To: string(requested), Reason: "external ids required"}
		}
		task.ExternalTaskID = fields.ExternalTaskID
		task.ExternalExecutionID = fields.ExternalExecutionID
		task.StartedAt = &now
	case model.TaskStatusCompleted:
		if fields.OutputData == "" {
			return &apperr.InvalidTaskTransitionError{From: string(from), To: string(requested), Reason: "output data required"}
		}
		task.OutputData = fields.OutputData
		task.CompletedAt = &now
		if task.StartedAt != nil {
			task.ExecutionTime = now.Sub(*task.StartedAt).Seconds()
		}
	case model.TaskStatusFailed:
		if fields.ErrorMessage == "" {
			return &apperr.InvalidTaskTransitionError{From: string(from), To: string(requested), Reason: "error message required"}
		}
		task.ErrorMessage = fields.ErrorMessage
		task.CompletedAt = &now
	case model.TaskStatusCancelled:
		if fields.ErrorMessage != "" {
			task.ErrorMessage = fields.ErrorMessage
		}
		task.CompletedAt = &now
	}

	task.Status = requested
	task.UpdatedAt = now
	return nil
}
