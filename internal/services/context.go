package services

import "context"

type contextKey string

const (
	runIDKey   contextKey = "run_id"
	jobIDKey   contextKey = "job_id"
	relPathKey contextKey = "rel_path"
)

// WithRunID annotates context with the conversion run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithJobID annotates context with the scheduler-assigned job index.
func WithJobID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job index if present.
func JobIDFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(jobIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithRelPath annotates context with the source path relative to the input root.
func WithRelPath(ctx context.Context, rel string) context.Context {
	if rel == "" {
		return ctx
	}
	return context.WithValue(ctx, relPathKey, rel)
}

// RelPathFromContext returns the relative source path if present.
func RelPathFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(relPathKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
