package flowline

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/observability"
)

// InstrumentProcessors returns an Interceptor that wraps every stage in a
// processor span, records processor metrics and logs stage failures.
// Pipelines add it automatically when tracing or metrics are enabled.
func InstrumentProcessors(flow string, spans observability.SpanManager, metrics observability.MetricsRecorder, logger *slog.Logger) Interceptor {
	if spans == nil {
		spans = observability.NoopSpanManager{}
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return func(ctx context.Context, stage StageInfo, e *event.Event, next ProcessorFunc) (*event.Event, error) {
		spanCtx, span := spans.StartProcessorSpan(ctx, flow, stage.Name)
		start := time.Now()

		out, err := next(spanCtx, e)

		metrics.RecordProcessorExecution(spanCtx, flow, stage.Name, time.Since(start), err)
		spans.EndSpanWithError(span, err)
		if err != nil {
			observability.LogProcessorError(logger, flow, stage.Name, err)
		}
		return out, err
	}
}
