package paretodb

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with ledger-specific context.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithWorker tags log lines with the id of the worker process.
func (l *Logger) WithWorker(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("worker", id),
	}
}

// WithDir adds the run directory.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dir", dir),
	}
}

// WithRow adds a row id.
func (l *Logger) WithRow(rowID int64) *Logger {
	return &Logger{
		Logger: l.Logger.With("row_id", rowID),
	}
}

// LogInsert logs an insert of one batch.
func (l *Logger) LogInsert(ctx context.Context, batchID int64, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"batch_id", batchID,
			"rows", rows,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"batch_id", batchID,
			"rows", rows,
		)
	}
}

// LogUpdate logs an objective update.
func (l *Logger) LogUpdate(ctx context.Context, rows, newlyValid, pareto int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "update failed",
			"rows", rows,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "update completed",
			"rows", rows,
			"newly_valid", newlyValid,
			"pareto", pareto,
		)
	}
}

// LogCorrection logs a status or counter correction.
func (l *Logger) LogCorrection(ctx context.Context, kind string, err error, args ...any) {
	if err != nil {
		l.ErrorContext(ctx, "correction failed",
			append([]any{"kind", kind, "error", err}, args...)...,
		)
	} else {
		l.InfoContext(ctx, "correction applied",
			append([]any{"kind", kind}, args...)...,
		)
	}
}

// LogInterrupt logs an interrupted worker operation.
func (l *Logger) LogInterrupt(ctx context.Context, op string, elapsed time.Duration) {
	l.WarnContext(ctx, "operation interrupted",
		"op", op,
		"elapsed", elapsed,
	)
}
