package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"orderflow/internal/apperr"
	"orderflow/internal/model"
)

type cancelFixture struct {
	taskRepo  *memTaskRepo
	orderRepo *memOrderRepo
	tasks     *TaskService
	orders    *OrderService
	backend   *scriptedBackend
	canceller *Canceller
}

func newCancelFixture(t *testing.T) *cancelFixture {
	t.Helper()
	f := &cancelFixture{
		taskRepo:  newMemTaskRepo(),
		orderRepo: newMemOrderRepo(),
		backend:   &scriptedBackend{},
	}
	f.tasks = newTestTaskService(f.taskRepo)
	f.orders = newTestOrderService(f.orderRepo, f.taskRepo)
	f.canceller = NewCanceller(f.tasks, f.orders, &staticResolver{}, f.backend)
	return f
}

func (f *cancelFixture) seed(t *testing.T, running bool) *model.Task {
	t.Helper()
	ctx := context.Background()

	order, err := f.orders.Create(ctx, "user-1", "svc-1", json.RawMessage(`{}`), 500)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []model.OrderStatus{model.OrderStatusPaid, model.OrderStatusProcessing} {
		if _, err := f.orders.UpdateStatus(ctx, order.ID, s); err != nil {
			t.Fatal(err)
		}
	}

	task, err := f.tasks.CreateForOrder(ctx, order.ID, "svc-1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if running {
		task, err = f.tasks.Transition(ctx, task, model.TaskStatusRunning, TransitionFields{
			ExternalTaskID: "et-9", ExternalExecutionID: "ee-9",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return task
}

func TestCancel_RunningTask(t *testing.T) {
	f := newCancelFixture(t)
	task := f.seed(t, true)

	got, err := f.canceller.Cancel(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.TaskStatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if f.backend.stopCalls != 1 || f.backend.stoppedTask != "et-9" {
		t.Errorf("stop calls = %d task %q", f.backend.stopCalls, f.backend.stoppedTask)
	}

	order, _ := f.orderRepo.GetByID(context.Background(), task.OrderID)
	if order.Status != model.OrderStatusCancelled {
		t.Errorf("order status = %s, want cancelled", order.Status)
	}
}

func TestCancel_PendingTaskSkipsBackend(t *testing.T) {
	f := newCancelFixture(t)
	task := f.seed(t, false)

	got, err := f.canceller.Cancel(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.TaskStatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	// Never dispatched, nothing to stop remotely.
	if f.backend.stopCalls != 0 {
		t.Errorf("stop calls = %d, want 0", f.backend.stopCalls)
	}
}

func TestCancel_BackendStopFailureStillCancelsLocally(t *testing.T) {
	f := newCancelFixture(t)
	f.backend.stopErr = context.DeadlineExceeded
	task := f.seed(t, true)

	got, err := f.canceller.Cancel(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.TaskStatusCancelled {
		t.Errorf("status = %s, want cancelled despite backend failure", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "backend stop failed") {
		t.Errorf("error message = %q, want stop failure annotation", got.ErrorMessage)
	}
}

func TestCancel_TerminalTaskRejected(t *testing.T) {
	f := newCancelFixture(t)
	task := f.seed(t, true)
	if _, err := f.canceller.Cancel(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	_, err := f.canceller.Cancel(context.Background(), task)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("cancel of cancelled task: got %v", err)
	}
	if f.backend.stopCalls != 1 {
		t.Errorf("stop calls = %d, want 1", f.backend.stopCalls)
	}
}
