package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(&Config{Level: level, ServiceName: "rental-test", Environment: "test", Output: &buf}), &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.slog())
	assert.Equal(t, slog.LevelWarn, LogLevel("WARN").slog())
	assert.Equal(t, slog.LevelInfo, LogLevel("verbose").slog())
}

func TestWithContext_AddsRequestScope(t *testing.T) {
	logger, buf := capture(LevelInfo)
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	ctx = ContextWithUserID(ctx, "clerk-7")

	logger.WithContext(ctx).WithOperation("checkout").WithError(errors.New("stock moved")).Info("Retrying")

	entry := lastLine(t, buf)
	assert.Equal(t, "rental-test", entry["service"])
	assert.Equal(t, "req-1", entry["requestId"])
	assert.Equal(t, "corr-1", entry["correlationId"])
	assert.Equal(t, "clerk-7", entry["userId"])
	assert.Equal(t, "checkout", entry["operation"])
	assert.Equal(t, "stock moved", entry["error"])
	assert.NotContains(t, entry, "traceId")

	ts, err := time.Parse(time.RFC3339Nano, entry["time"].(string))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())
}

func TestContextHelpers(t *testing.T) {
	assert.Empty(t, UserIDFromContext(context.Background()))
	assert.Equal(t, "corr-9", CorrelationIDFromContext(ContextWithCorrelationID(context.Background(), "corr-9")))
}

func TestLogBusinessEvent(t *testing.T) {
	logger, buf := capture(LevelInfo)
	logger.LogBusinessEvent(context.Background(), BusinessEvent{
		EventType:  "rental.return.finalized",
		EntityType: "rental_return",
		EntityID:   "ret-1",
		Action:     "finalized",
		RelatedIDs: map[string]string{"transactionId": "txn-1"},
		Data:       map[string]any{"returnType": "FULL"},
	})

	entry := lastLine(t, buf)
	assert.Equal(t, "Business event", entry["msg"])
	assert.Equal(t, "ret-1", entry["entityId"])
	assert.Equal(t, "txn-1", entry["transactionId"])
	assert.Equal(t, "FULL", entry["returnType"])
}

func TestDatabaseQuery_FailureLogsAtError(t *testing.T) {
	logger, buf := capture(LevelWarn)

	logger.DatabaseQuery(context.Background(), "stock_levels", "update", time.Millisecond, true, 1)
	assert.Zero(t, buf.Len(), "successful queries log at debug")

	logger.DatabaseQuery(context.Background(), "stock_levels", "update", time.Millisecond, false, 0)
	entry := lastLine(t, buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "stock_levels", entry["collection"])
}
