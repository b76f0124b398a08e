package api

import (
	"context"
	"encoding/json"
	"net/http"

	"orderflow/internal/apperr"
	"orderflow/internal/dto/resp"
	"orderflow/internal/model"

	"github.com/gin-gonic/gin"
)

type TaskProvider interface {
	CreateForOrder(ctx context.Context, orderID, aiServiceID string, inputData json.RawMessage) (*model.Task, error)
	Get(ctx context.Context, id string) (*model.Task, error)
	ListByOrder(ctx context.Context, orderID string) ([]model.Task, error)
}

type DispatchProvider interface {
	Submit(ctx context.Context, task *model.Task) (*model.Task, error)
}

type SyncProvider interface {
	Sync(ctx context.Context, task *model.Task) (*model.Task, error)
}

type CancelProvider interface {
	Cancel(ctx context.Context, task *model.Task) (*model.Task, error)
}

type TaskHandler struct {
	orders     OrderProvider
	tasks      TaskProvider
	dispatcher DispatchProvider
	reconciler SyncProvider
	canceller  CancelProvider
}

func NewTaskHandler(orders OrderProvider, tasks TaskProvider, dispatcher DispatchProvider, reconciler SyncProvider, canceller CancelProvider) *TaskHandler {
	return &TaskHandler{
		orders:     orders,
		tasks:      tasks,
		dispatcher: dispatcher,
		reconciler: reconciler,
		canceller:  canceller,
	}
}

// StartAnalysis converts a paid order into its single tracked task and
// dispatches it. The call blocks for the duration of the dispatch (bounded by
// timeout x retries) and returns the task in running or failed state.
func (h *TaskHandler) StartAnalysis(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := requireOwner(ctx, h.orders, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	switch order.Status {
	case model.OrderStatusPaid:
		if order, err = h.orders.UpdateStatus(ctx, order.ID, model.OrderStatusProcessing); err != nil {
			writeError(c, err)
			return
		}
	case model.OrderStatusProcessing:
		// Re-dispatch after an earlier failed task is allowed.
	default:
		writeError(c, apperr.New(apperr.KindConflict,
			"order %s is %s, only paid orders can be dispatched", order.ID, order.Status))
		return
	}

	task, err := h.tasks.CreateForOrder(ctx, order.ID, order.AIServiceID, json.RawMessage(order.ServiceData))
	if err != nil {
		writeError(c, err)
		return
	}

	dispatched, err := h.dispatcher.Submit(ctx, task)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp.NewTaskItem(dispatched))
}

// GetTask is the poll endpoint. Non-terminal tasks are synced against the
// backend inline; terminal ones come straight from the store.
func (h *TaskHandler) GetTask(c *gin.Context) {
	ctx := c.Request.Context()
	task, err := h.tasks.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := requireOwner(ctx, h.orders, task.OrderID); err != nil {
		writeError(c, err)
		return
	}

	if !task.Status.Terminal() {
		synced, err := h.reconciler.Sync(ctx, task)
		if err != nil {
			// Transient: the stored status stands, the client retries.
			writeError(c, err)
			return
		}
		task = synced
	}
	c.JSON(http.StatusOK, resp.NewTaskItem(task))
}

func (h *TaskHandler) ListOrderTasks(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := requireOwner(ctx, h.orders, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	tasks, err := h.tasks.ListByOrder(ctx, order.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]resp.TaskItem, 0, len(tasks))
	for i := range tasks {
		items = append(items, resp.NewTaskItem(&tasks[i]))
	}
	c.JSON(http.StatusOK, items)
}

func (h *TaskHandler) CancelTask(c *gin.Context) {
	ctx := c.Request.Context()
	task, err := h.tasks.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := requireOwner(ctx, h.orders, task.OrderID); err != nil {
		writeError(c, err)
		return
	}

	cancelled, err := h.canceller.Cancel(ctx, task)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.NewTaskItem(cancelled))
}
