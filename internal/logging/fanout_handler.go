package logging

import (
	"context"
	"log/slog"
)

type fanoutHandler []slog.Handler

// TeeHandler duplicates records into every non-nil handler. Each handler
// applies its own level.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	var out fanoutHandler
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	switch len(out) {
	case 0:
		return NoopHandler{}
	case 1:
		return out[0]
	default:
		return out
	}
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
