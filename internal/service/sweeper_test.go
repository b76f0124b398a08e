package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"orderflow/internal/aiclient"
	"orderflow/internal/metrics"
	"orderflow/internal/model"
)

type sweeperFixture struct {
	taskRepo  *memTaskRepo
	orderRepo *memOrderRepo
	tasks     *TaskService
	orders    *OrderService
	backend   *scriptedBackend
	sweeper   *Sweeper
}

func newSweeperFixture(t *testing.T) *sweeperFixture {
	t.Helper()
	f := &sweeperFixture{
		taskRepo:  newMemTaskRepo(),
		orderRepo: newMemOrderRepo(),
		backend:   &scriptedBackend{},
	}
	f.tasks = newTestTaskService(f.taskRepo)
	f.orders = newTestOrderService(f.orderRepo, f.taskRepo)
	rec := NewReconciler(f.tasks, f.orders, &staticResolver{}, f.backend)
	f.sweeper = NewSweeper(nil, f.tasks, f.taskRepo, rec, metrics.NopObserver{}, SweeperConfig{
		StaleAfter: time.Minute,
	})
	return f
}

func (f *sweeperFixture) backdate(t *testing.T, taskID string, age time.Duration) {
	t.Helper()
	f.taskRepo.mu.Lock()
	defer f.taskRepo.mu.Unlock()
	task, ok := f.taskRepo.tasks[taskID]
	if !ok {
		t.Fatalf("task %s not stored", taskID)
	}
	task.UpdatedAt = time.Now().Add(-age)
	f.taskRepo.tasks[taskID] = task
}

func TestSweep_AbandonedPendingTaskFails(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	task, err := f.tasks.CreateForOrder(ctx, "order-1", "svc-1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	f.backdate(t, task.ID, time.Hour)

	f.sweeper.sweep(ctx)

	stored, _ := f.taskRepo.GetByID(ctx, task.ID)
	if stored.Status != model.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if stored.ErrorMessage != "dispatch abandoned" {
		t.Errorf("error message = %q", stored.ErrorMessage)
	}
	if f.backend.queryCalls != 0 {
		t.Errorf("backend queried %d times for a task it never saw", f.backend.queryCalls)
	}

	// The order is dispatchable again.
	if _, err := f.tasks.CreateForOrder(ctx, "order-1", "svc-1", json.RawMessage(`{}`)); err != nil {
		t.Errorf("new task after abandoned one should be allowed, got %v", err)
	}
}

func TestSweep_RunningTaskIsReconciled(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	task, err := f.tasks.CreateForOrder(ctx, "order-1", "svc-1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	task, err = f.tasks.Transition(ctx, task, model.TaskStatusRunning, TransitionFields{
		ExternalTaskID: "et", ExternalExecutionID: "ee",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.backdate(t, task.ID, time.Hour)
	f.backend.queryFn = func(int) (*aiclient.StatusResult, error) {
		return &aiclient.StatusResult{State: aiclient.StateSucceeded, Outputs: `{"k":1}`}, nil
	}

	f.sweeper.sweep(ctx)

	stored, _ := f.taskRepo.GetByID(ctx, task.ID)
	if stored.Status != model.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if stored.OutputData != `{"k":1}` {
		t.Errorf("output = %q", stored.OutputData)
	}
}

func TestSweep_FreshTasksUntouched(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	task, err := f.tasks.CreateForOrder(ctx, "order-1", "svc-1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	f.sweeper.sweep(ctx)

	stored, _ := f.taskRepo.GetByID(ctx, task.ID)
	if stored.Status != model.TaskStatusPending {
		t.Errorf("status = %s, fresh pending task must stay pending", stored.Status)
	}
}
