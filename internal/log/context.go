package log

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// IntoContext stores the logger in the context for downstream handlers.
func IntoContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger stored by IntoContext, falling back to a
// logger built on the slog default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: ComponentApp}
}
