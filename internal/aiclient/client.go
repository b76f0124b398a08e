package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"orderflow/pkg/logger"

	"go.uber.org/zap"
)

// ExecutionState is the backend's view of a workflow run.
type ExecutionState string

const (
	StateRunning   ExecutionState = "running"
	StateSucceeded ExecutionState = "succeeded"
	StateFailed    ExecutionState = "failed"
	StateStopped   ExecutionState = "stopped"
	StateNotFound  ExecutionState = "not_found"
)

// Config is the connection profile for one AI service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type StartResult struct {
	TaskID      string
	ExecutionID string
}

type StatusResult struct {
	State       ExecutionState
	Outputs     string
	Error       string
	ElapsedTime float64
}

// Backend is the opaque AI execution capability: start a workflow run, query
// it, stop it. Implementations must classify failures via BackendError so the
// dispatcher can tell transient from permanent.
type Backend interface {
	Start(ctx context.Context, cfg Config, inputData string) (*StartResult, error)
	QueryStatus(ctx context.Context, cfg Config, executionID string) (*StatusResult, error)
	Stop(ctx context.Context, cfg Config, taskID string) error
}

// BackendError carries the HTTP status (0 for transport errors) and whether a
// retry can reasonably succeed.
type BackendError struct {
	StatusCode int
	Message    string
	Transient  bool
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("ai backend error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ai backend error: %s", e.Message)
}

// IsTransient reports whether err is worth retrying: network errors, timeouts
// and 5xx responses are; 4xx responses are not.
func IsTransient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Transient
	}
	return false
}

const defaultTimeout = 30 * time.Second

// Client talks to a workflow-run style HTTP API:
//
//	POST {base}/v1/workflows/run                  -> task_id, workflow_run_id
//	GET  {base}/v1/workflows/run/{execution_id}   -> status, outputs, error
//	POST {base}/v1/workflows/tasks/{task_id}/stop
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NewClientWithHTTP is used by tests to inject a custom transport.
func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

type startRequest struct {
	Inputs       json.RawMessage `json:"inputs"`
	ResponseMode string          `json:"response_mode"`
}

type startResponse struct {
	TaskID        string `json:"task_id"`
	WorkflowRunID string `json:"workflow_run_id"`
}

type statusResponse struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Outputs     json.RawMessage `json:"outputs"`
	Error       string          `json:"error"`
	ElapsedTime float64         `json:"elapsed_time"`
}

func (c *Client) Start(ctx context.Context, cfg Config, inputData string) (*StartResult, error) {
	body, err := json.Marshal(startRequest{
		Inputs:       json.RawMessage(inputData),
		ResponseMode: "async",
	})
	if err != nil {
		return nil, &BackendError{Message: fmt.Sprintf("encode inputs: %v", err)}
	}

	var resp startResponse
	if err := c.do(ctx, cfg, http.MethodPost, "/v1/workflows/run", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	if resp.WorkflowRunID == "" {
		return nil, &BackendError{Message: "backend returned no workflow_run_id"}
	}
	return &StartResult{TaskID: resp.TaskID, ExecutionID: resp.WorkflowRunID}, nil
}

func (c *Client) QueryStatus(ctx context.Context, cfg Config, executionID string) (*StatusResult, error) {
	var resp statusResponse
	err := c.do(ctx, cfg, http.MethodGet, "/v1/workflows/run/"+executionID, nil, &resp)
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) && be.StatusCode == http.StatusNotFound {
			return &StatusResult{State: StateNotFound}, nil
		}
		return nil, err
	}

	res := &StatusResult{
		Error:       resp.Error,
		ElapsedTime: resp.ElapsedTime,
	}
	if len(resp.Outputs) > 0 {
		res.Outputs = string(resp.Outputs)
	}
	switch resp.Status {
	case "succeeded":
		res.State = StateSucceeded
	case "failed":
		res.State = StateFailed
	case "stopped":
		res.State = StateStopped
	case "running", "pending":
		res.State = StateRunning
	default:
		logger.Warn("unknown backend execution state", zap.String("state", resp.Status))
		res.State = StateRunning
	}
	return res, nil
}

func (c *Client) Stop(ctx context.Context, cfg Config, taskID string) error {
	return c.do(ctx, cfg, http.MethodPost, "/v1/workflows/tasks/"+taskID+"/stop", nil, nil)
}

func (c *Client) do(ctx context.Context, cfg Config, method, path string, body io.Reader, out any) error {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+path, body)
	if err != nil {
		return &BackendError{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &BackendError{Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &BackendError{StatusCode: resp.StatusCode, Message: readErrBody(resp.Body), Transient: true}
	}
	if resp.StatusCode >= 400 {
		return &BackendError{StatusCode: resp.StatusCode, Message: readErrBody(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &BackendError{Message: fmt.Sprintf("decode response: %v", err)}
		}
	}
	return nil
}

func readErrBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	if len(b) == 0 {
		return "empty error body"
	}
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &e) == nil && e.Message != "" {
		return e.Message
	}
	return string(b)
}
