package contextkey

import "context"

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	RunID     key = "run_id"
	CaseName  key = "case"
)

// WithRunID attaches a judged run identifier to ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunID, runID)
}

// WithCase attaches a suite case name to ctx.
func WithCase(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, CaseName, name)
}

// String returns the string stored under k, or "" when absent.
func String(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(k).(string)
	return v
}
