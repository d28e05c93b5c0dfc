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
)

func jsonLogger(buf *bytes.Buffer, level string) *Logger {
	return NewLogger(LogConfig{Level: level, Format: "json", Output: buf})
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines[0])
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &record))
	return record
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, "warn")

	logger.Info(context.Background(), "quiet")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), "loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestContextCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, "info")

	ctx := AddRequestID(context.Background(), "req-1")
	ctx = AddSessionID(ctx, "sess-1")
	ctx = AddToolID(ctx, "tools.dcg")
	logger.Info(ctx, "probing")

	record := lastRecord(t, &buf)
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "sess-1", record["session_id"])
	assert.Equal(t, "tools.dcg", record["tool_id"])
}

func TestNilContextTolerated(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, "info")

	logger.Info(nil, "no context")
	assert.Contains(t, buf.String(), "no context")
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, "info")

	logger.Info(context.Background(), "auth failed",
		"detail", "api_key = abcdef0123456789abcdef")
	out := buf.String()
	assert.NotContains(t, out, "abcdef0123456789abcdef")
	assert.Contains(t, out, "[REDACTED]")

	buf.Reset()
	logger.Error(context.Background(), "update check failed",
		"error", errors.New("bad credentials ghp_"+strings.Repeat("a", 36)))
	out = buf.String()
	assert.NotContains(t, out, "ghp_"+strings.Repeat("a", 36))
	assert.Contains(t, out, "[REDACTED]")
}

func TestCustomRedactPattern(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{
		Level:          "info",
		Format:         "json",
		Output:         &buf,
		RedactPatterns: []string{`opsgate-secret-\w+`},
	})

	logger.Info(context.Background(), "loaded", "value", "opsgate-secret-abc123")
	assert.NotContains(t, buf.String(), "opsgate-secret-abc123")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, "info").WithFields("component", "snapshot")

	logger.Info(context.Background(), "collected")
	record := lastRecord(t, &buf)
	assert.Equal(t, "snapshot", record["component"])
}

func TestGetRequestAndSessionID(t *testing.T) {
	ctx := AddRequestID(context.Background(), "req-9")
	assert.Equal(t, "req-9", GetRequestID(ctx))
	assert.Equal(t, "", GetSessionID(ctx))

	ctx = AddSessionID(ctx, "sess-9")
	assert.Equal(t, "sess-9", GetSessionID(ctx))
}

func TestLogLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogLevelFromString("debug"))
	assert.Equal(t, slog.LevelWarn, LogLevelFromString("WARNING"))
	assert.Equal(t, slog.LevelError, LogLevelFromString("error"))
	assert.Equal(t, slog.LevelInfo, LogLevelFromString("bogus"))
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "text", Output: &buf})

	logger.Info(context.Background(), "hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}
