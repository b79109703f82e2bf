package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEventProcessed records a completed event with its duration and
	// error status.
	RecordEventProcessed(ctx context.Context, flow string, duration time.Duration, err error)

	// RecordRejection records an event refused at admission.
	RecordRejection(ctx context.Context, flow, reason string)

	// RecordProcessorExecution records one processor invocation.
	RecordProcessorExecution(ctx context.Context, flow, processor string, duration time.Duration, err error)

	// AddInFlight adjusts the in-flight event gauge.
	AddInFlight(ctx context.Context, flow string, delta int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	events           metric.Int64Counter
	eventLatency     metric.Float64Histogram
	eventErrors      metric.Int64Counter
	rejections       metric.Int64Counter
	processorCalls   metric.Int64Counter
	processorLatency metric.Float64Histogram
	processorErrors  metric.Int64Counter
	inFlight         metric.Int64UpDownCounter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("flowline")
	m := &otelMetrics{}
	var err error

	if m.events, err = meter.Int64Counter("flowline.events.processed",
		metric.WithDescription("Number of events that completed processing"),
	); err != nil {
		return nil, err
	}
	if m.eventLatency, err = meter.Float64Histogram("flowline.events.latency_ms",
		metric.WithDescription("Event processing latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.eventErrors, err = meter.Int64Counter("flowline.events.errors",
		metric.WithDescription("Number of events that completed with an error"),
	); err != nil {
		return nil, err
	}
	if m.rejections, err = meter.Int64Counter("flowline.events.rejected",
		metric.WithDescription("Number of events refused by back-pressure"),
	); err != nil {
		return nil, err
	}
	if m.processorCalls, err = meter.Int64Counter("flowline.processor.executions",
		metric.WithDescription("Number of processor executions"),
	); err != nil {
		return nil, err
	}
	if m.processorLatency, err = meter.Float64Histogram("flowline.processor.latency_ms",
		metric.WithDescription("Processor latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.processorErrors, err = meter.Int64Counter("flowline.processor.errors",
		metric.WithDescription("Number of processor errors"),
	); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("flowline.events.in_flight",
		metric.WithDescription("Events admitted and not yet completed"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEventProcessed records a completed event.
func (m *otelMetrics) RecordEventProcessed(ctx context.Context, flow string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.Bool("success", err == nil),
	)
	m.events.Add(ctx, 1, attrs)
	m.eventLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.eventErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", flow)))
	}
}

// RecordRejection records a back-pressure rejection.
func (m *otelMetrics) RecordRejection(ctx context.Context, flow, reason string) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("reason", reason),
	))
}

// RecordProcessorExecution records a processor invocation.
func (m *otelMetrics) RecordProcessorExecution(ctx context.Context, flow, processor string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("processor", processor),
	)
	m.processorCalls.Add(ctx, 1, attrs)
	m.processorLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.processorErrors.Add(ctx, 1, attrs)
	}
}

// AddInFlight adjusts the in-flight gauge.
func (m *otelMetrics) AddInFlight(ctx context.Context, flow string, delta int64) {
	m.inFlight.Add(ctx, delta, metric.WithAttributes(attribute.String("flow", flow)))
}
