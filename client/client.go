package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	v1 "orderflow/pkg/api/v1"
	"orderflow/pkg/logger"

	"go.uber.org/zap"
)

const defaultPollInterval = 3 * time.Second

// OrderflowClient is a small SDK over the HTTP API. It is safe for concurrent
// use; the access token is fixed at construction.
type OrderflowClient struct {
	addr         string
	token        string
	pollInterval time.Duration
	httpClient   *http.Client
}

type Option func(*OrderflowClient)

func WithPollInterval(d time.Duration) Option {
	return func(c *OrderflowClient) { c.pollInterval = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *OrderflowClient) { c.httpClient = hc }
}

func NewOrderflowClient(addr, token string, opts ...Option) *OrderflowClient {
	c := &OrderflowClient{
		addr:         addr,
		token:        token,
		pollInterval: defaultPollInterval,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api error (status %d, %s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func (c *OrderflowClient) CreateOrder(ctx context.Context, aiServiceID string, serviceData json.RawMessage, amountCents int64) (*v1.Order, error) {
	body := map[string]any{
		"ai_service_id": aiServiceID,
		"service_data":  serviceData,
		"amount_cents":  amountCents,
	}
	var order v1.Order
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *OrderflowClient) GetOrder(ctx context.Context, orderID string) (*v1.Order, error) {
	var order v1.Order
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *OrderflowClient) ListOrders(ctx context.Context, offset, limit int) (*v1.OrderList, error) {
	var list v1.OrderList
	path := fmt.Sprintf("/v1/orders?offset=%d&limit=%d", offset, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// PayOrder marks the order paid. Real payment flows would land here through a
// gateway callback; the API accepts the transition directly.
func (c *OrderflowClient) PayOrder(ctx context.Context, orderID string) (*v1.Order, error) {
	return c.updateStatus(ctx, orderID, v1.OrderPaid)
}

func (c *OrderflowClient) CancelOrder(ctx context.Context, orderID string) (*v1.Order, error) {
	return c.updateStatus(ctx, orderID, v1.OrderCancelled)
}

func (c *OrderflowClient) updateStatus(ctx context.Context, orderID, status string) (*v1.Order, error) {
	var order v1.Order
	body := map[string]string{"status": status}
	if err := c.do(ctx, http.MethodPost, "/v1/orders/"+orderID+"/status", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// StartAnalysis dispatches the order's work to the AI backend. The call blocks
// until the dispatch settles and returns the task in running or failed state.
func (c *OrderflowClient) StartAnalysis(ctx context.Context, orderID string) (*v1.Task, error) {
	var task v1.Task
	if err := c.do(ctx, http.MethodPost, "/v1/orders/"+orderID+"/tasks", nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *OrderflowClient) GetTask(ctx context.Context, taskID string) (*v1.Task, error) {
	var task v1.Task
	if err := c.do(ctx, http.MethodGet, "/v1/tasks/"+taskID, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *OrderflowClient) CancelTask(ctx context.Context, taskID string) (*v1.Task, error) {
	var task v1.Task
	if err := c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/cancel", nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// WaitForTask polls until the task reaches a terminal status or ctx ends.
// Transport errors and 5xx responses back off and retry; 4xx responses abort.
func (c *OrderflowClient) WaitForTask(ctx context.Context, taskID string) (*v1.Task, error) {
	interval := c.pollInterval
	for {
		task, err := c.GetTask(ctx, taskID)
		if err == nil {
			if task.Terminal() {
				return task, nil
			}
			interval = c.pollInterval
		} else {
			if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode < 500 {
				return nil, err
			}
			var jitter time.Duration
			if half := int64(interval / 2); half > 0 {
				jitter = time.Duration(rand.Int63n(half))
			}
			logger.Warn("task poll failed, backing off",
				zap.String("task_id", taskID),
				zap.Duration("backoff", interval+jitter),
				zap.Error(err))
			interval += jitter
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (c *OrderflowClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if b, rerr := io.ReadAll(io.LimitReader(resp.Body, 4096)); rerr == nil {
			if json.Unmarshal(b, &e) == nil {
				apiErr.Message = e.Error
				apiErr.Kind = e.Kind
			} else {
				apiErr.Message = string(b)
			}
		}
		return apiErr
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
