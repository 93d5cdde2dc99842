// Package logging wraps log/slog with trace/span correlation, grounded on
// the teacher's engine/telemetry/logging/logging.go correlatedLogger
// (same InfoCtx/ErrorCtx shape), pointed at this module's own tracing
// package instead of the teacher's internal one.
package logging

import (
	"context"
	"log/slog"

	"ultrareader/internal/telemetry/tracing"
)

// Logger is the correlation-aware logging contract used throughout the
// acquisition core; it also satisfies models.Logger's narrower surface.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	DebugCtx(ctx context.Context, msg string, kv ...any)
	InfoCtx(ctx context.Context, msg string, kv ...any)
	WarnCtx(ctx context.Context, msg string, kv ...any)
	ErrorCtx(ctx context.Context, msg string, kv ...any)
}

type correlatedLogger struct{ base *slog.Logger }

// New wraps base (or slog.Default() if nil) in a correlation-aware Logger.
func New(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &correlatedLogger{base: base}
}

func (l *correlatedLogger) Debug(msg string, kv ...any) { l.base.Debug(msg, kv...) }
func (l *correlatedLogger) Info(msg string, kv ...any)  { l.base.Info(msg, kv...) }
func (l *correlatedLogger) Warn(msg string, kv ...any)  { l.base.Warn(msg, kv...) }
func (l *correlatedLogger) Error(msg string, kv ...any) { l.base.Error(msg, kv...) }

func (l *correlatedLogger) DebugCtx(ctx context.Context, msg string, kv ...any) {
	l.base.DebugContext(ctx, msg, l.correlate(ctx, kv)...)
}

func (l *correlatedLogger) InfoCtx(ctx context.Context, msg string, kv ...any) {
	l.base.InfoContext(ctx, msg, l.correlate(ctx, kv)...)
}

func (l *correlatedLogger) WarnCtx(ctx context.Context, msg string, kv ...any) {
	l.base.WarnContext(ctx, msg, l.correlate(ctx, kv)...)
}

func (l *correlatedLogger) ErrorCtx(ctx context.Context, msg string, kv ...any) {
	l.base.ErrorContext(ctx, msg, l.correlate(ctx, kv)...)
}

func (l *correlatedLogger) correlate(ctx context.Context, kv []any) []any {
	traceID, spanID := tracing.ExtractIDs(ctx)
	if traceID == "" && spanID == "" {
		return kv
	}
	return append(kv, slog.String("trace_id", traceID), slog.String("span_id", spanID))
}
