// Package logging provides a configured slog logger with:
// - TTY detection for human-readable vs JSON output
// - LOG_FORMAT env var override (text/json)
// - LOG_LEVEL env var (debug/info/warn/error)
// - Source file:line info with shortened relative paths
// - Correlation and user ids carried on the context
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ContextKey is the type for values this package stores on a context.
type ContextKey string

const (
	CorrelationIDKey ContextKey = "log_correlation_id"
	UserIDKey        ContextKey = "log_user_id"
	BatchIDKey       ContextKey = "log_batch_id"
)

// Options overrides environment-derived settings. Zero values fall back to
// the environment.
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New creates a logger configured from the environment.
func New() *slog.Logger {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a logger.
// Format is determined by:
// 1. opts.Format, then LOG_FORMAT (text/json)
// 2. TTY detection (text for TTY, JSON otherwise)
func NewWithOptions(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	level := opts.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}

	useText := format == "text"
	if format == "" {
		if f, ok := w.(*os.File); ok {
			useText = isatty(f)
		}
	}

	wd, _ := os.Getwd()
	hopts := &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if src, ok := a.Value.Any().(*slog.Source); ok {
					if rel, err := filepath.Rel(wd, src.File); err == nil {
						src.File = rel
					} else {
						src.File = filepath.Base(src.File)
					}
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if useText {
		handler = slog.NewTextHandler(w, hopts)
	} else {
		handler = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(handler)
}

// SetDefault creates a new logger and sets it as the default slog logger.
// Returns the created logger for additional use.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

// WithCorrelationID returns a context carrying the request's correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithUserID returns a context carrying the acting user's id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithBatchID returns a context carrying a batch job id.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

// GetCorrelationID returns the correlation id, or "" if none is set.
func GetCorrelationID(ctx context.Context) string {
	return stringValue(ctx, CorrelationIDKey)
}

// GetUserID returns the user id, or "" if none is set.
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

// GetBatchID returns the batch id, or "" if none is set.
func GetBatchID(ctx context.Context) string {
	return stringValue(ctx, BatchIDKey)
}

// FromContext returns logger with any ids on ctx attached. The original
// logger is returned unchanged when ctx carries none.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}
	var attrs []any
	if id := GetCorrelationID(ctx); id != "" {
		attrs = append(attrs, "correlation_id", id)
	}
	if id := GetUserID(ctx); id != "" {
		attrs = append(attrs, "user_id", id)
	}
	if id := GetBatchID(ctx); id != "" {
		attrs = append(attrs, "batch_id", id)
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// isatty returns true if the file is a terminal.
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
