package observability

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

// testHandler captures log records for testing.
type testHandler struct {
	buf    *bytes.Buffer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	// Build a map from the record
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}

	// Add pre-configured attrs
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}

	// Add record attrs
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	// Encode as JSON
	enc := json.NewEncoder(h.buf)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return nil
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  make([]slog.Attr, len(h.attrs)+len(attrs)),
		groups: h.groups,
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(name string) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups, name),
	}
	return newH
}

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func (h *testHandler) getAllRecords() []map[string]any {
	var records []map[string]any
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for _, line := range lines {
		if len(line) > 0 {
			var m map[string]any
			if err := json.Unmarshal(line, &m); err == nil {
				records = append(records, m)
			}
		}
	}
	return records
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds flow and event ids", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		enriched := EnrichLogger(logger, "orders", "evt-1", "corr-1")
		enriched.Info("test message")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "orders", record["flow"])
		assert.Equal(t, "evt-1", record["event_id"])
		assert.Equal(t, "corr-1", record["correlation_id"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "orders", "evt-1", "corr-1"))
	})
}

func TestLogLifecycle(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogLifecycle(logger, "orders", "start", "started")

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "lifecycle transition", record["msg"])
	assert.Equal(t, "orders", record["flow"])
	assert.Equal(t, "start", record["phase"])
	assert.Equal(t, "started", record["state"])
}

func TestLogLifecycleError(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogLifecycleError(logger, "orders", "initialise", errors.New("bad config"))

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "bad config", record["error"])
	assert.Equal(t, "initialise", record["phase"])
}

func TestLogStopFailure(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogStopFailure(logger, "orders", "source", errors.New("stuck"))

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "source", record["component"])
	assert.Equal(t, "stuck", record["error"])
}

func TestLogEventRejected(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogEventRejected(logger, "orders", "evt-1", "MAX_CONCURRENCY_EXCEEDED")

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "MAX_CONCURRENCY_EXCEEDED", record["reason"])
}

func TestLogEventCompletion(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogEventComplete(logger, "orders", "evt-1", 12.5)
	LogEventError(logger, "orders", "evt-2", errors.New("failed"), 3)

	records := h.getAllRecords()
	require.Len(t, records, 2)
	assert.Equal(t, "event completed", records[0]["msg"])
	assert.Equal(t, 12.5, records[0]["duration_ms"])
	assert.Equal(t, "event failed", records[1]["msg"])
	assert.Equal(t, "ERROR", records[1]["level"])
	assert.Equal(t, "evt-2", records[1]["event_id"])
}

func TestLogProcessorError(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogProcessorError(logger, "orders", "enrich", errors.New("timeout"))

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "enrich", record["processor"])
	assert.Equal(t, "timeout", record["error"])
}

func TestNilLoggerHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		LogLifecycle(nil, "f", "start", "started")
		LogLifecycleError(nil, "f", "start", errors.New("x"))
		LogStopFailure(nil, "f", "sink", errors.New("x"))
		LogEventRejected(nil, "f", "e", "r")
		LogEventComplete(nil, "f", "e", 1)
		LogEventError(nil, "f", "e", errors.New("x"), 1)
		LogProcessorError(nil, "f", "p", errors.New("x"))
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 5.0)
}
