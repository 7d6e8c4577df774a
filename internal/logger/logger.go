// Package logger provides structured, leveled logging on top of log/slog.
package logger

import (
	"context"
	"io"
	"log/slog"
)

// Level controls the minimum severity that gets emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// LoggerInterface is the logging contract injected into services.
// Key-value pairs follow the slog convention (alternating key, value).
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
	With(kv ...any) LoggerInterface
}

// Logger implements LoggerInterface using a JSON slog handler.
type Logger struct {
	sl *slog.Logger
}

var _ LoggerInterface = (*Logger)(nil)

// New creates a Logger writing JSON records to w at the given level.
// The service name is attached to every record. Extra key-value pairs
// are attached as well (may be nil).
func New(w io.Writer, level Level, service string, kv []any) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(level)})
	sl := slog.New(h).With("service", service)
	if len(kv) > 0 {
		sl = sl.With(kv...)
	}
	return &Logger{sl: sl}
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(ctx context.Context, msg string, kv ...any) {
	l.sl.DebugContext(ctx, msg, kv...)
}

func (l *Logger) Info(ctx context.Context, msg string, kv ...any) {
	l.sl.InfoContext(ctx, msg, kv...)
}

func (l *Logger) Warn(ctx context.Context, msg string, kv ...any) {
	l.sl.WarnContext(ctx, msg, kv...)
}

func (l *Logger) Error(ctx context.Context, msg string, kv ...any) {
	l.sl.ErrorContext(ctx, msg, kv...)
}

// With returns a child logger with the given key-value pairs attached.
func (l *Logger) With(kv ...any) LoggerInterface {
	return &Logger{sl: l.sl.With(kv...)}
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	return New(io.Discard, LevelError, "test", nil)
}
