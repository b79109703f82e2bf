package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("flowline")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartEventSpan starts a span covering one event's trip through a flow.
	StartEventSpan(ctx context.Context, flow, eventID, correlationID string) (context.Context, trace.Span)

	// StartProcessorSpan starts a child span for a processor invocation.
	StartProcessorSpan(ctx context.Context, flow, processor string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return otelSpanManager{}
}

func (otelSpanManager) StartEventSpan(ctx context.Context, flow, eventID, correlationID string) (context.Context, trace.Span) {
	return StartEventSpan(ctx, flow, eventID, correlationID)
}

func (otelSpanManager) StartProcessorSpan(ctx context.Context, flow, processor string) (context.Context, trace.Span) {
	return StartProcessorSpan(ctx, flow, processor)
}

func (otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartEventSpan starts an event span on the global tracer.
func StartEventSpan(ctx context.Context, flow, eventID, correlationID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flowline.flow."+flow,
		trace.WithAttributes(
			attribute.String("flow.name", flow),
			attribute.String("event.id", eventID),
			attribute.String("event.correlation_id", correlationID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartProcessorSpan starts a processor span on the global tracer.
func StartProcessorSpan(ctx context.Context, flow, processor string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flowline.processor."+processor,
		trace.WithAttributes(
			attribute.String("flow.name", flow),
			attribute.String("processor.name", processor),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
