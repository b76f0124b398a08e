// Package trace carries the per-request trace id through a context so the
// HTTP middleware and background publishers agree on one key.
package trace

import "context"

type ctxKey struct{}

// WithID returns ctx annotated with the trace id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// ID returns the trace id stored in ctx, or "" when there is none.
func ID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
