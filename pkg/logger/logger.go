// Package logger carries a request-scoped *slog.Logger in a context.
package logger

import (
	"context"
	"log/slog"
)

func Set(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// Get returns the context's logger, or slog.Default() if none was set.
func Get(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// With returns a context whose logger carries the additional attributes.
func With(ctx context.Context, args ...any) context.Context {
	return Set(ctx, Get(ctx).With(args...))
}

type loggerKeyType struct{}

var loggerKey loggerKeyType
