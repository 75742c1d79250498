package txlog

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with txlog-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithTransaction adds a transaction identifier field to the logger.
func (l *Logger) WithTransaction(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("transaction", id),
	}
}

// WithSavepoint adds a savepoint field to the logger.
func (l *Logger) WithSavepoint(savepoint string) *Logger {
	return &Logger{
		Logger: l.Logger.With("savepoint", savepoint),
	}
}

// LogPersist logs the outcome of a queue flush.
func (l *Logger) LogPersist(ctx context.Context, persisted, remaining int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "persist failed",
			"persisted", persisted,
			"remaining", remaining,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "persist completed",
			"persisted", persisted,
		)
	}
}

// LogReplay logs the outcome of a savepoint replay.
func (l *Logger) LogReplay(ctx context.Context, savepoint string, entriesReplayed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "replay failed",
			"savepoint", savepoint,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "replay completed",
			"savepoint", savepoint,
			"entries_replayed", entriesReplayed,
		)
	}
}

// LogRollback logs the outcome of a rollback.
func (l *Logger) LogRollback(ctx context.Context, transactionID string, version int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "rollback failed",
			"transaction", transactionID,
			"target_version", version,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "rollback completed",
			"transaction", transactionID,
			"target_version", version,
		)
	}
}
