package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordEventProcessed does nothing.
func (NoopMetrics) RecordEventProcessed(context.Context, string, time.Duration, error) {}

// RecordRejection does nothing.
func (NoopMetrics) RecordRejection(context.Context, string, string) {}

// RecordProcessorExecution does nothing.
func (NoopMetrics) RecordProcessorExecution(context.Context, string, string, time.Duration, error) {
}

// AddInFlight does nothing.
func (NoopMetrics) AddInFlight(context.Context, string, int64) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartEventSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartEventSpan(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartProcessorSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartProcessorSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
