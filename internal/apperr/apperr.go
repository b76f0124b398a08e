package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	KindValidation Kind = iota
	KindConflict
	KindNotFound
	KindAuthorization
	KindDependency
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindDependency:
		return "dependency"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind of err, defaulting to KindPersistence for
// unclassified errors so that store failures are never silently downgraded.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var it *InvalidTransitionError
	if errors.As(err, &it) {
		return KindConflict
	}
	var no *NoOpTransitionError
	if errors.As(err, &no) {
		return KindConflict
	}
	var ta *TaskAlreadyActiveError
	if errors.As(err, &ta) {
		return KindConflict
	}
	var itt *InvalidTaskTransitionError
	if errors.As(err, &itt) {
		return KindConflict
	}
	return KindPersistence
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// InvalidTransitionError reports an order transition outside the legal table,
// carrying the disallowed edge and the currently allowed targets.
type InvalidTransitionError struct {
	From    string
	To      string
	Allowed []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s, allowed targets: {%s}",
		e.From, e.To, strings.Join(e.Allowed, ", "))
}

// NoOpTransitionError reports a transition request for the current status.
type NoOpTransitionError struct {
	Status string
}

func (e *NoOpTransitionError) Error() string {
	return fmt.Sprintf("order already in status %s", e.Status)
}

// TaskAlreadyActiveError is the idempotent-conflict result of creating a task
// for an order that already has a non-terminal one. It references the existing
// task so the caller can resume polling instead of crashing.
type TaskAlreadyActiveError struct {
	TaskID string
	Status string
}

func (e *TaskAlreadyActiveError) Error() string {
	return fmt.Sprintf("order already has active task %s (status %s)", e.TaskID, e.Status)
}

// InvalidTaskTransitionError reports an illegal task edge or a transition with
// a missing required field.
type InvalidTaskTransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *InvalidTaskTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid task transition %s -> %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid task transition %s -> %s", e.From, e.To)
}
