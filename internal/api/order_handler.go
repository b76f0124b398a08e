package api

import (
	"context"
	"encoding/json"
	"net/http"

	"orderflow/internal/apperr"
	"orderflow/internal/dto/req"
	"orderflow/internal/dto/resp"
	"orderflow/internal/model"
	"orderflow/internal/service"

	"github.com/gin-gonic/gin"
)

type OrderProvider interface {
	Create(ctx context.Context, userID, aiServiceID string, serviceData json.RawMessage, amountCents int64) (*model.Order, error)
	Get(ctx context.Context, id string) (*model.Order, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Order, int64, error)
	UpdateStatus(ctx context.Context, id string, requested model.OrderStatus) (*model.Order, error)
	Delete(ctx context.Context, id string) error
	Health(ctx context.Context) error
}

type OrderHandler struct {
	orders OrderProvider
}

func NewOrderHandler(orders OrderProvider) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// requireOwner loads the order and rejects callers that neither own it nor
// hold the admin role.
func requireOwner(ctx context.Context, orders OrderProvider, orderID string) (*model.Order, error) {
	order, err := orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	op := service.GetOperatorInfo(ctx)
	if op == nil {
		return nil, apperr.New(apperr.KindAuthorization, "no caller identity")
	}
	if order.UserID != op.UserID && !op.Admin() {
		return nil, apperr.New(apperr.KindAuthorization, "order %s does not belong to caller", orderID)
	}
	return order, nil
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var r req.CreateOrderRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}
	op := service.GetOperatorInfo(c.Request.Context())
	if op == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	order, err := h.orders.Create(c.Request.Context(), op.UserID, r.AIServiceID, r.ServiceData, r.AmountCents)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp.NewOrderItem(order))
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := requireOwner(c.Request.Context(), h.orders, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.NewOrderItem(order))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	op := service.GetOperatorInfo(c.Request.Context())
	if op == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var page struct {
		Offset int `form:"offset"`
		Limit  int `form:"limit"`
	}
	_ = c.ShouldBindQuery(&page)

	orders, total, err := h.orders.ListByUser(c.Request.Context(), op.UserID, page.Offset, page.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]resp.OrderItem, 0, len(orders))
	for i := range orders {
		items = append(items, resp.NewOrderItem(&orders[i]))
	}
	c.JSON(http.StatusOK, resp.OrderListResponse{Data: items, Total: total})
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	var r req.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}

	order, err := requireOwner(c.Request.Context(), h.orders, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	updated, err := h.orders.UpdateStatus(c.Request.Context(), order.ID, model.OrderStatus(r.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.NewOrderItem(updated))
}

func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	order, err := requireOwner(c.Request.Context(), h.orders, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.orders.Delete(c.Request.Context(), order.ID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": order.ID})
}

func (h *OrderHandler) HealthCheck(c *gin.Context) {
	if err := h.orders.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
