package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Logger is a structured logger for bidibot components
type Logger struct {
	*slog.Logger
}

// NewLoggerWithWriter creates a logger writing to w in the given format ("json" or "text").
func NewLoggerWithWriter(w io.Writer, component, format string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "bidibot"),
	)

	return &Logger{Logger: logger}
}

// NopLogger returns a logger that discards everything.
func NopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))}
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// WithContext returns a logger carrying the trace and span ids of the active span, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return l
	}
	return &Logger{
		Logger: l.Logger.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		),
	}
}

// WithSession returns a logger with session-specific fields
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("session_id", sessionID),
		),
	}
}

// With returns a logger with extra attributes, keeping the helper methods.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithComponent returns a logger tagged with a different component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("component", component),
		),
	}
}

// CommandSent logs an outgoing protocol command
func (l *Logger) CommandSent(id uint64, method string, payloadSize int) {
	l.Debug("command sent",
		slog.Uint64("command_id", id),
		slog.String("method", method),
		slog.Int("payload_size", payloadSize),
	)
}

// CommandCompleted logs the response to a protocol command
func (l *Logger) CommandCompleted(id uint64, method, outcome string, durationMs float64) {
	l.Debug("command completed",
		slog.Uint64("command_id", id),
		slog.String("method", method),
		slog.String("outcome", outcome),
		slog.Float64("duration_ms", durationMs),
	)
}

// EventReceived logs a protocol event that nothing subscribes to
func (l *Logger) EventReceived(method string, payloadSize int) {
	l.Debug("event received",
		slog.String("method", method),
		slog.Int("payload_size", payloadSize),
	)
}

// SessionOpened logs a successful session open
func (l *Logger) SessionOpened(sessionID, contextID string) {
	l.Info("session opened",
		slog.String("bidi_session_id", sessionID),
		slog.String("browsing_context", contextID),
	)
}

// SessionClosed logs a session teardown
func (l *Logger) SessionClosed(err error) {
	if err != nil {
		l.Error("session close failed", slog.String("error", err.Error()))
		return
	}
	l.Info("session closed")
}
