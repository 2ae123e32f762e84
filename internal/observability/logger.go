package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
)

var logger *slog.Logger

// InitLogger initializes the global structured logger writing to stdout.
func InitLogger(level, format string) *slog.Logger {
	return InitLoggerTo(os.Stdout, level, format)
}

// InitLoggerTo initializes the global structured logger on w.
func InitLoggerTo(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: level == "debug",
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// FromContext returns a logger carrying the request and user ids found in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	l := logger
	if l == nil {
		l = slog.Default()
	}

	attrs := make([]any, 0, 2)
	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}
	if userID, ok := ctx.Value(userIDKey).(int64); ok && userID != 0 {
		attrs = append(attrs, slog.Int64("user_id", userID))
	}

	if len(attrs) > 0 {
		return l.With(attrs...)
	}
	return l
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithUserID adds user ID to context
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
