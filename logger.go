package rowgrid

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with rowgrid-specific context.
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
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithRowID adds a row identity field to the logger.
func (l *Logger) WithRowID(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("row_id", id),
	}
}

// WithSource adds a source name field to the logger.
func (l *Logger) WithSource(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("source", name),
	}
}

// LogImport logs the outcome of an import.
func (l *Logger) LogImport(ctx context.Context, rows uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "import failed",
			"rows", rows,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "import completed",
			"rows", rows,
		)
	}
}

// LogEdit logs a row edit persistence attempt.
func (l *Logger) LogEdit(ctx context.Context, id uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "edit persistence failed",
			"row_id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "edit persisted",
			"row_id", id,
		)
	}
}
