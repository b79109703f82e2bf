package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/flowline/pkg/flowline"
	"github.com/randalmurphal/flowline/pkg/flowline/config"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/exception"
	"github.com/randalmurphal/flowline/pkg/flowline/notification"
	"github.com/randalmurphal/flowline/pkg/flowline/observability"
	"github.com/randalmurphal/flowline/pkg/flowline/processors"
	"github.com/randalmurphal/flowline/pkg/flowline/registry"
	"github.com/randalmurphal/flowline/pkg/flowline/source"
	"github.com/randalmurphal/flowline/pkg/flowline/statestore"
)

var (
	// ErrUnknownPipeline is returned when no pipeline has the given name.
	ErrUnknownPipeline = errors.New("unknown pipeline")

	// ErrNotTriggerable is returned by Trigger for pipelines whose source
	// is not a *source.Triggerable.
	ErrNotTriggerable = errors.New("pipeline has no triggerable source")

	// ErrNoDeadLetterQueue is returned by Replay for pipelines that do not
	// dead-letter failures.
	ErrNoDeadLetterQueue = errors.New("pipeline has no dead letter queue")
)

// Engine owns a set of pipelines and their shared collaborators.
type Engine struct {
	settings   config.Settings
	logger     *slog.Logger
	processors *registry.Registry[string, processors.Factory]
	sources    *registry.Registry[string, source.Factory]
	bus        *notification.Bus
	ownsBus    bool
	store      statestore.Store
	metrics    observability.MetricsRecorder
	dlqConfig  exception.DLQConfig
	extra      []flowline.Option

	pipelines *registry.Registry[string, *flowline.Pipeline]

	mu   sync.Mutex
	dlqs map[string]*exception.InMemoryDLQ
}

// Option configures an Engine.
type Option func(*Engine)

// WithSettings sets process-wide settings. Default: config.DefaultSettings.
func WithSettings(s config.Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// WithLogger sets the engine logger. Pipelines log through it with a flow
// attribute.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProcessorFactories replaces the processor factory registry.
// Default: processors.Builtins.
func WithProcessorFactories(r *registry.Registry[string, processors.Factory]) Option {
	return func(e *Engine) { e.processors = r }
}

// WithSourceFactories replaces the source factory registry.
// Default: source.Builtins.
func WithSourceFactories(r *registry.Registry[string, source.Factory]) Option {
	return func(e *Engine) { e.sources = r }
}

// WithNotificationBus shares an existing bus. The engine closes only a bus
// it created itself.
func WithNotificationBus(b *notification.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithStateStore persists run state for every pipeline. The caller closes
// the store.
func WithStateStore(s statestore.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithMetrics records metrics for every pipeline.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDeadLetterConfig configures the queues of pipelines defined with
// on_error: dead_letter.
func WithDeadLetterConfig(cfg exception.DLQConfig) Option {
	return func(e *Engine) { e.dlqConfig = cfg }
}

// WithPipelineOptions applies opts to every pipeline the engine builds,
// after the options derived from the definition.
func WithPipelineOptions(opts ...flowline.Option) Option {
	return func(e *Engine) { e.extra = append(e.extra, opts...) }
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		settings:  config.DefaultSettings(),
		logger:    slog.Default(),
		dlqConfig: exception.DefaultDLQConfig,
		pipelines: registry.New[string, *flowline.Pipeline](),
		dlqs:      make(map[string]*exception.InMemoryDLQ),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.processors == nil {
		e.processors = processors.Builtins()
	}
	if e.sources == nil {
		e.sources = source.Builtins()
	}
	if e.bus == nil {
		e.bus = notification.NewBus(notification.DefaultBusConfig)
		e.ownsBus = true
	}
	return e
}

// Add registers a pipeline built in code. Its name must be unique.
func (e *Engine) Add(p *flowline.Pipeline) error {
	return e.pipelines.Add(p.Name(), p)
}

// Pipeline returns the pipeline named name.
func (e *Engine) Pipeline(name string) (*flowline.Pipeline, bool) {
	return e.pipelines.Get(name)
}

// Pipelines returns every pipeline in declaration order.
func (e *Engine) Pipelines() []*flowline.Pipeline {
	return e.pipelines.Values()
}

// Bus returns the notification bus every built pipeline dispatches to.
func (e *Engine) Bus() *notification.Bus { return e.bus }

// Initialise initialises every pipeline in order. If one fails, those
// already initialised are disposed.
func (e *Engine) Initialise(ctx context.Context) error {
	ps := e.Pipelines()
	for i, p := range ps {
		if err := p.Initialise(ctx); err != nil {
			for _, done := range slices.Backward(ps[:i]) {
				_ = done.Dispose(ctx)
			}
			return err
		}
	}
	e.logger.Info("engine initialised", slog.Int("pipelines", len(ps)))
	return nil
}

// Start starts every pipeline concurrently and returns the first failure.
// Pipelines that did start keep running; Dispose stops them without
// recording a run state, so a failed start does not mark flows stopped.
func (e *Engine) Start(ctx context.Context) error {
	ps := e.Pipelines()
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range ps {
		g.Go(func() error {
			if err := p.Start(gctx); err != nil {
				return fmt.Errorf("start %s: %w", p.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sum := e.Summary()
	e.logger.Info("engine started",
		slog.Int("trigger_flows", sum.DeclaredTriggerFlows),
		slog.Int("active_trigger_flows", sum.ActiveTriggerFlows),
		slog.Int("private_flows", sum.DeclaredPrivateFlows),
		slog.Int("active_private_flows", sum.ActivePrivateFlows),
	)
	return nil
}

// Stop stops every started pipeline in reverse order, returning every
// failure joined.
func (e *Engine) Stop(ctx context.Context) error {
	var errs []error
	for _, p := range slices.Backward(e.Pipelines()) {
		if !p.IsStarted() {
			continue
		}
		if err := p.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Dispose disposes every pipeline in reverse order, then closes the bus if
// the engine created it. Pipelines that are still started are stopped
// first without recording the stop, so they start again on the next run.
func (e *Engine) Dispose(ctx context.Context) error {
	var errs []error
	for _, p := range slices.Backward(e.Pipelines()) {
		if err := p.Dispose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispose %s: %w", p.Name(), err))
		}
	}
	if e.ownsBus {
		if err := e.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close notification bus: %w", err))
		}
	}
	return errors.Join(errs...)
}

// StartPipeline starts one pipeline, recording it as started.
func (e *Engine) StartPipeline(ctx context.Context, name string) error {
	p, err := e.lookup(name)
	if err != nil {
		return err
	}
	return p.Start(ctx)
}

// StopPipeline stops one pipeline, recording it as stopped so it stays
// stopped across restarts.
func (e *Engine) StopPipeline(ctx context.Context, name string) error {
	p, err := e.lookup(name)
	if err != nil {
		return err
	}
	return p.Stop(ctx)
}

// Trigger hands payload to the named pipeline's triggerable source.
func (e *Engine) Trigger(ctx context.Context, name string, payload any, opts ...event.Option) (*event.Event, error) {
	p, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	t, ok := p.Source().(*source.Triggerable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotTriggerable, name)
	}
	return t.Trigger(ctx, payload, opts...)
}

// DeadLetters returns the dead letter queue of a pipeline defined with
// on_error: dead_letter.
func (e *Engine) DeadLetters(name string) (*exception.InMemoryDLQ, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.dlqs[name]
	return q, ok
}

// Replay redelivers up to limit dead-lettered events to their pipeline and
// returns how many succeeded.
func (e *Engine) Replay(ctx context.Context, name string, limit int) (int, error) {
	p, err := e.lookup(name)
	if err != nil {
		return 0, err
	}
	q, ok := e.DeadLetters(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoDeadLetterQueue, name)
	}
	return exception.Replay(ctx, q, limit, func(ctx context.Context, ev *event.Event) error {
		_, err := p.Process(ctx, ev)
		return err
	})
}

// FlowStats implements observability.StatsSource over every pipeline.
func (e *Engine) FlowStats() []observability.FlowStats {
	var out []observability.FlowStats
	for _, p := range e.Pipelines() {
		out = append(out, p.FlowStats()...)
	}
	return out
}

// Summary counts declared and active trigger and private flows.
func (e *Engine) Summary() flowline.FlowSummary {
	return flowline.Summarize(e.Pipelines())
}

func (e *Engine) lookup(name string) (*flowline.Pipeline, error) {
	p, ok := e.pipelines.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPipeline, name)
	}
	return p, nil
}
