package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/flowline/pkg/flowline"
	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/config"
	"github.com/randalmurphal/flowline/pkg/flowline/exception"
	"github.com/randalmurphal/flowline/pkg/flowline/lifecycle"
	"github.com/randalmurphal/flowline/pkg/flowline/processors"
	"github.com/randalmurphal/flowline/pkg/flowline/source"
	"github.com/randalmurphal/flowline/pkg/flowline/strategy"
)

// Build validates def and adds a pipeline for each of its entries. Nothing
// is added unless every pipeline builds.
func (e *Engine) Build(def *config.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	type result struct {
		pipeline *flowline.Pipeline
		dlq      *exception.InMemoryDLQ
	}
	built := make([]result, 0, len(def.Pipelines))
	var errs []error
	for i := range def.Pipelines {
		pd := &def.Pipelines[i]
		if e.pipelines.Has(pd.Name) {
			errs = append(errs, fmt.Errorf("%w: pipeline %s already exists", config.ErrInvalidDefinition, pd.Name))
			continue
		}
		p, q, err := e.buildPipeline(pd)
		if err != nil {
			errs = append(errs, fmt.Errorf("pipeline %s: %w", pd.Name, err))
			continue
		}
		built = append(built, result{pipeline: p, dlq: q})
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, r := range built {
		if err := e.Add(r.pipeline); err != nil {
			return err
		}
		if r.dlq != nil {
			e.mu.Lock()
			e.dlqs[r.pipeline.Name()] = r.dlq
			e.mu.Unlock()
		}
	}
	return nil
}

func (e *Engine) buildPipeline(pd *config.PipelineDef) (*flowline.Pipeline, *exception.InMemoryDLQ, error) {
	logger := e.logger.With(slog.String("flow", pd.Name))

	ps, err := strategy.New(strategy.Kind(pd.Strategy.Kind), pd.Strategy.Options())
	if err != nil {
		return nil, nil, err
	}
	handler, dlq := e.exceptionHandler(pd, logger)

	opts := []flowline.Option{
		flowline.WithLogger(logger),
		flowline.WithProcessingStrategy(ps),
		flowline.WithMaxConcurrency(pd.MaxConcurrency),
		flowline.WithExceptionHandler(handler),
		flowline.WithWaitInterval(e.settings.WaitInterval),
		flowline.WithStrictLifecycle(e.settings.StrictLifecycle),
		flowline.WithTracing(e.settings.Tracing),
		flowline.WithNotificationDispatcher(e.bus),
	}
	if strings.EqualFold(pd.InitialState, config.StateStopped) {
		opts = append(opts, flowline.WithInitialState(lifecycle.Stopped))
	}
	if pd.BackPressure != "" {
		bp, err := backpressure.ParseStrategy(pd.BackPressure)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, flowline.WithBackPressureStrategy(bp))
	}
	if e.store != nil {
		opts = append(opts, flowline.WithStateStore(e.store))
	}
	if e.metrics != nil {
		opts = append(opts, flowline.WithMetrics(e.metrics))
	}

	if pd.Source != nil {
		src, err := source.Build(e.sources, pd.Source, source.Env{Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, flowline.WithSource(src))
	}

	stages := make([]flowline.Processor, 0, len(pd.Processors))
	for _, cd := range pd.Processors {
		p, err := processors.Build(e.processors, cd, processors.Env{Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		stages = append(stages, p)
	}
	opts = append(opts, flowline.WithProcessors(stages...))
	opts = append(opts, e.extra...)

	return flowline.NewPipeline(pd.Name, opts...), dlq, nil
}

func (e *Engine) exceptionHandler(pd *config.PipelineDef, logger *slog.Logger) (exception.Handler, *exception.InMemoryDLQ) {
	var q *exception.InMemoryDLQ
	deadLetter := func() exception.Handler {
		if q == nil {
			q = exception.NewInMemoryDLQ(e.dlqConfig)
		}
		return exception.DeadLetter(pd.Name, q, exception.WithLogger(logger))
	}

	var h exception.Handler
	switch strings.ToLower(pd.OnError) {
	case config.OnErrorContinue:
		h = exception.Continue(exception.WithLogger(logger))
	case config.OnErrorDeadLetter:
		h = deadLetter()
	default:
		h = exception.Propagate(exception.WithLogger(logger))
	}

	if pd.PoisonThreshold > 0 {
		d := exception.NewPoisonDetector(exception.PoisonConfig{
			Threshold: pd.PoisonThreshold,
			OnDetect: func(key string, failures int) {
				logger.Warn("poison event detected",
					slog.String("correlation_id", key),
					slog.Int("failures", failures),
				)
			},
		})
		h = exception.Poison(d, h, deadLetter())
	}
	return h, q
}
