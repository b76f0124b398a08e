package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"orderflow/internal/aiclient"
	"orderflow/internal/apperr"
	"orderflow/internal/metrics"
	"orderflow/internal/model"
)

func newPendingTask(t *testing.T, svc *TaskService) *model.Task {
	t.Helper()
	task, err := svc.CreateForOrder(context.Background(), "order-1", "svc-1", json.RawMessage(`{"q":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func newTestDispatcher(tasks *TaskService, backend aiclient.Backend) *Dispatcher {
	return NewDispatcher(tasks, &staticResolver{}, backend, 3, time.Millisecond, 0, metrics.NopObserver{})
}

func TestSubmit_Success(t *testing.T) {
	repo := newMemTaskRepo()
	tasks := newTestTaskService(repo)
	backend := &scriptedBackend{}
	d := newTestDispatcher(tasks, backend)

	task := newPendingTask(t, tasks)
	updated, err := d.Submit(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != model.TaskStatusRunning {
		t.Errorf("status = %s, want running", updated.Status)
	}
	if updated.ExternalExecutionID != "ext-exec" {
		t.Errorf("external execution id = %q", updated.ExternalExecutionID)
	}
	if updated.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0", updated.RetryCount)
	}
	if backend.startCalls != 1 {
		t.Errorf("start calls = %d, want 1", backend.startCalls)
	}
}

func TestSubmit_TransientFailuresThenSuccess(t *testing.T) {
	repo := newMemTaskRepo()
	tasks := newTestTaskService(repo)
	backend := &scriptedBackend{
		startFn: func(call int) (*aiclient.StartResult, error) {
			if call <= 3 {
				return nil, &aiclient.BackendError{StatusCode: 503, Message: "overloaded", Transient: true}
			}
			return &aiclient.StartResult{TaskID: "et", ExecutionID: "ee"}, nil
		},
	}
	d := newTestDispatcher(tasks, backend)

	task := newPendingTask(t, tasks)
	updated, err := d.Submit(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != model.TaskStatusRunning {
		t.Errorf("status = %s, want running", updated.Status)
	}
	if updated.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", updated.RetryCount)
	}
	if backend.startCalls != 4 {
		t.Errorf("start calls = %d, want 4", backend.startCalls)
	}
}

func TestSubmit_RetriesExhausted(t *testing.T) {
	repo := newMemTaskRepo()
	tasks := newTestTaskService(repo)
	backend := &scriptedBackend{
		startFn: func(call int) (*aiclient.StartResult, error) {
			return nil, &aiclient.BackendError{StatusCode: 502, Message: "bad gateway", Transient: true}
		},
	}
	d := newTestDispatcher(tasks, backend)

	task := newPendingTask(t, tasks)
	updated, err := d.Submit(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != model.TaskStatusFailed {
		t.Errorf("status = %s, want failed", updated.Status)
	}
	if updated.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", updated.RetryCount)
	}
	// maxRetries 3 means 4 attempts total
	if backend.startCalls != 4 {
		t.Errorf("start calls = %d, want 4", backend.startCalls)
	}
	if !strings.Contains(updated.ErrorMessage, "4 attempts") {
		t.Errorf("error message = %q", updated.ErrorMessage)
	}
}

func TestSubmit_PermanentRejection(t *testing.T) {
	repo := newMemTaskRepo()
	tasks := newTestTaskService(repo)
	backend := &scriptedBackend{
		startFn: func(call int) (*aiclient.StartResult, error) {
			return nil, &aiclient.BackendError{StatusCode: 400, Message: "bad inputs"}
		},
	}
	d := newTestDispatcher(tasks, backend)

	task := newPendingTask(t, tasks)
	updated, err := d.Submit(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != model.TaskStatusFailed {
		t.Errorf("status = %s, want failed", updated.Status)
	}
	if updated.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0 for permanent rejection", updated.RetryCount)
	}
	if backend.startCalls != 1 {
		t.Errorf("start calls = %d, want 1", backend.startCalls)
	}
}

func TestSubmit_ResolverFailureIsPermanent(t *testing.T) {
	repo := newMemTaskRepo()
	tasks := newTestTaskService(repo)
	backend := &scriptedBackend{}
	d := NewDispatcher(tasks, &staticResolver{err: apperr.New(apperr.KindValidation, "service disabled")},
		backend, 3, time.Millisecond, 0, metrics.NopObserver{})

	task := newPendingTask(t, tasks)
	updated, err := d.Submit(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != model.TaskStatusFailed {
		t.Errorf("status = %s, want failed", updated.Status)
	}
	if backend.startCalls != 0 {
		t.Errorf("backend called %d times despite resolver failure", backend.startCalls)
	}
}

func TestSubmit_CancelledTaskIsNotRevived(t *testing.T) {
	repo := newMemTaskRepo()
	tasks := newTestTaskService(repo)
	backend := &scriptedBackend{}
	d := newTestDispatcher(tasks, backend)

	task := newPendingTask(t, tasks)
	stale, err := tasks.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tasks.Transition(context.Background(), task, model.TaskStatusCancelled, TransitionFields{}); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Submit(context.Background(), stale); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("submit of cancelled task via stale copy: got %v", err)
	}
	if backend.startCalls != 0 {
		t.Errorf("backend started %d jobs for a cancelled task", backend.startCalls)
	}
	stored, _ := repo.GetByID(context.Background(), task.ID)
	if stored.Status != model.TaskStatusCancelled {
		t.Errorf("status = %s, want cancelled", stored.Status)
	}
}

func TestSubmit_RejectsNonPendingTask(t *testing.T) {
	tasks := newTestTaskService(newMemTaskRepo())
	d := newTestDispatcher(tasks, &scriptedBackend{})

	task := newPendingTask(t, tasks)
	if _, err := d.Submit(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Submit(context.Background(), task); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("re-submit of running task: got %v", err)
	}
}
