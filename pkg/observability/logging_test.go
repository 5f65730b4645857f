package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "bot", "json", slog.LevelDebug)

	logger.WithSession("bot-1").SessionOpened("session-1", "ctx-1")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "session opened", entries[0]["msg"])
	assert.Equal(t, "bot", entries[0]["component"])
	assert.Equal(t, "bidibot", entries[0]["system"])
	assert.Equal(t, "bot-1", entries[0]["session_id"])
	assert.Equal(t, "ctx-1", entries[0]["browsing_context"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "bidi", "json", slog.LevelInfo)

	logger.CommandSent(1, "browsingContext.navigate", 42)
	assert.Empty(t, buf.String(), "debug output should be filtered at info")

	logger.SessionClosed(errors.New("connection reset"))
	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0]["level"])
	assert.Equal(t, "connection reset", entries[0]["error"])
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "cli", "text", slog.LevelInfo)

	logger.With("url", "https://example.com").Info("navigation started")

	out := buf.String()
	assert.Contains(t, out, "msg=\"navigation started\"")
	assert.Contains(t, out, "url=https://example.com")
}

func TestLogger_WithContextAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "bot", "json", slog.LevelInfo)

	assert.Same(t, logger, logger.WithContext(context.Background()), "no span means no extra fields")

	provider := sdktrace.NewTracerProvider()
	defer provider.Shutdown(context.Background())
	ctx, span := provider.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.WithContext(ctx).Info("inside span")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[0]["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entries[0]["span_id"])
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	assert.NotPanics(t, func() {
		logger.Error("discarded")
		logger.WithSession("x").CommandCompleted(1, "m", "success", 1.5)
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for input, want := range tests {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
