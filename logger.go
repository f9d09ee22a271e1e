package handleheap

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with handleheap-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithHandle adds the handle's id, kind and element type to the logger.
func (l *Logger) WithHandle(h Handle) *Logger {
	return &Logger{
		Logger: l.Logger.With("handle", h.ID(), "kind", h.Kind().String(), "type", h.Type().String()),
	}
}

// LogCreate logs a handle creation.
func (l *Logger) LogCreate(ctx context.Context, kind Kind, t ElemType, length int, err error) {
	if err != nil {
		l.WarnContext(ctx, "create failed",
			"kind", kind.String(),
			"type", t.String(),
			"length", length,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "create completed",
			"kind", kind.String(),
			"type", t.String(),
			"length", length,
		)
	}
}

// LogFree logs an explicit free.
func (l *Logger) LogFree(ctx context.Context, h Handle, err error) {
	if err != nil {
		l.WarnContext(ctx, "free failed",
			"handle", h.ID(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "free completed",
			"handle", h.ID(),
		)
	}
}

// LogCollect logs a completed collection cycle.
func (l *Logger) LogCollect(ctx context.Context, swept int, compacted bool, moved int, duration time.Duration) {
	if compacted {
		l.InfoContext(ctx, "collection compacted arena",
			"swept", swept,
			"moved", moved,
			"duration", duration,
		)
	} else {
		l.DebugContext(ctx, "collection completed",
			"swept", swept,
			"duration", duration,
		)
	}
}

// LogNarrowing logs a value truncated to fit its element type.
func (l *Logger) LogNarrowing(ctx context.Context, h Handle, index int, value int64) {
	l.WarnContext(ctx, "value out of range for element type, storing truncated bits",
		"handle", h.ID(),
		"type", h.Type().String(),
		"index", index,
		"value", value,
	)
}
