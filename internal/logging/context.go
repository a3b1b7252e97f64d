package logging

import (
	"context"
	"log/slog"

	"audioconv/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one invocation of the converter.
	FieldRunID = "run_id"
	// FieldJobID is the scheduler-assigned job index.
	FieldJobID = "job_id"
	// FieldRelPath is the source path relative to the input root.
	FieldRelPath = "rel_path"
	FieldCodec   = "codec"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to do next.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldJobID, id))
	}
	if rel, ok := services.RelPathFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRelPath, rel))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
