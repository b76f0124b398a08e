package v1

import "time"

type EventKind string

const (
	EventOrderTerminal EventKind = "order.terminal"
	EventTaskTerminal  EventKind = "task.terminal"
)

// Event is the fire-and-forget notification published after every terminal
// order/task transition. Consumers must tolerate duplicates.
type Event struct {
	Kind       EventKind `json:"kind"`
	OrderID    string    `json:"order_id"`
	TaskID     string    `json:"task_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}
