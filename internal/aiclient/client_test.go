package aiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"orderflow/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

func TestStart(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody startRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(startResponse{TaskID: "t-1", WorkflowRunID: "run-1"})
	}))
	defer srv.Close()

	c := NewClient()
	res, err := c.Start(context.Background(), Config{BaseURL: srv.URL, APIKey: "sk-test"}, `{"text":"hi"}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.TaskID != "t-1" || res.ExecutionID != "run-1" {
		t.Errorf("result = %+v", res)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPath != "/v1/workflows/run" {
		t.Errorf("path = %q", gotPath)
	}
	if string(gotBody.Inputs) != `{"text":"hi"}` {
		t.Errorf("inputs = %s", gotBody.Inputs)
	}
}

func TestStart_MissingRunID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(startResponse{TaskID: "t-1"})
	}))
	defer srv.Close()

	_, err := NewClient().Start(context.Background(), Config{BaseURL: srv.URL}, `{}`)
	if err == nil {
		t.Fatal("expected error for missing workflow_run_id")
	}
	if IsTransient(err) {
		t.Error("missing run id should not be transient")
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, false},
	}
	for _, tt := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]string{"message": "nope"})
		}))

		_, err := NewClient().Start(context.Background(), Config{BaseURL: srv.URL}, `{}`)
		srv.Close()
		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		if IsTransient(err) != tt.transient {
			t.Errorf("status %d: transient = %v, want %v", tt.status, IsTransient(err), tt.transient)
		}
	}
}

func TestErrorClassification_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient().Start(context.Background(), Config{BaseURL: srv.URL}, `{}`)
	if !IsTransient(err) {
		t.Errorf("connection refused should be transient, got %v", err)
	}
}

func TestQueryStatus_States(t *testing.T) {
	cases := []struct {
		wire string
		want ExecutionState
	}{
		{"succeeded", StateSucceeded},
		{"failed", StateFailed},
		{"stopped", StateStopped},
		{"running", StateRunning},
		{"pending", StateRunning},
		{"weird", StateRunning},
	}
	for _, tt := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/workflows/run/run-1" {
				t.Errorf("path = %q", r.URL.Path)
			}
			json.NewEncoder(w).Encode(statusResponse{
				ID: "run-1", Status: tt.wire,
				Outputs: json.RawMessage(`{"a":1}`), ElapsedTime: 1.5,
			})
		}))

		res, err := NewClient().QueryStatus(context.Background(), Config{BaseURL: srv.URL}, "run-1")
		srv.Close()
		if err != nil {
			t.Fatalf("%s: %v", tt.wire, err)
		}
		if res.State != tt.want {
			t.Errorf("%s: state = %s, want %s", tt.wire, res.State, tt.want)
		}
		if res.Outputs != `{"a":1}` {
			t.Errorf("%s: outputs = %q", tt.wire, res.Outputs)
		}
	}
}

func TestQueryStatus_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res, err := NewClient().QueryStatus(context.Background(), Config{BaseURL: srv.URL}, "gone")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateNotFound {
		t.Errorf("state = %s, want not_found", res.State)
	}
}

func TestStop(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewClient().Stop(context.Background(), Config{BaseURL: srv.URL}, "task-7"); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/v1/workflows/tasks/task-7/stop" {
		t.Errorf("path = %q", gotPath)
	}
}
