package flowline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/exception"
	"github.com/randalmurphal/flowline/pkg/flowline/lifecycle"
	"github.com/randalmurphal/flowline/pkg/flowline/notification"
	"github.com/randalmurphal/flowline/pkg/flowline/observability"
	"github.com/randalmurphal/flowline/pkg/flowline/statestore"
	"github.com/randalmurphal/flowline/pkg/flowline/strategy"
)

// Pipeline is a named flow: an optional source feeding an ordered chain of
// processors, scheduled by a processing strategy and bounded by a maximum
// number of in-flight events.
//
// A pipeline moves through Initialise, Start, Stop and Dispose. Events are
// only admitted while it is started.
type Pipeline struct {
	name string
	lc   *lifecycle.Manager

	source         MessageSource
	processors     []Processor
	interceptors   []Interceptor
	maxConcurrency int64
	strategy       strategy.ProcessingStrategy
	handler        exception.Handler
	initialState   lifecycle.State
	backPressure   *backpressure.Strategy
	waitInterval   time.Duration
	completionSize int
	strict         bool

	dispatcher notification.Dispatcher
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager
	stateStore statestore.Store
	stats      *Statistics

	// Set by Initialise.
	chain      *Chain
	selector   *backpressure.Selector
	completion *completionScheduler

	sinkMu     sync.RWMutex
	sink       strategy.Sink
	canProcess atomic.Bool
	inFlight   atomic.Int64
	started    atomic.Bool
	torndown   atomic.Bool // components disposed by a failed Initialise
	pending    sync.Map    // *event.Context -> struct{}
}

// Compile-time interface checks.
var (
	_ Listener                  = (*Pipeline)(nil)
	_ observability.StatsSource = (*Pipeline)(nil)
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSource sets the pipeline's message source.
func WithSource(s MessageSource) Option {
	return func(p *Pipeline) {
		p.source = s
	}
}

// WithProcessors appends processors to the pipeline's chain.
func WithProcessors(ps ...Processor) Option {
	return func(p *Pipeline) {
		p.processors = append(p.processors, ps...)
	}
}

// WithInterceptors adds interceptors applied around every processor.
func WithInterceptors(is ...Interceptor) Option {
	return func(p *Pipeline) {
		p.interceptors = append(p.interceptors, is...)
	}
}

// WithMaxConcurrency bounds the number of in-flight events.
// Default: 0 (unbounded)
func WithMaxConcurrency(n int) Option {
	return func(p *Pipeline) {
		p.maxConcurrency = int64(n)
	}
}

// WithProcessingStrategy sets how admitted events are scheduled.
// Default: strategy.Direct
func WithProcessingStrategy(s strategy.ProcessingStrategy) Option {
	return func(p *Pipeline) {
		p.strategy = s
	}
}

// WithExceptionHandler sets the handler processing errors are routed to.
// The handler must accept every error.
// Default: exception.Propagate()
func WithExceptionHandler(h exception.Handler) Option {
	return func(p *Pipeline) {
		p.handler = h
	}
}

// WithInitialState sets the state the pipeline enters on its first Start.
// With lifecycle.Stopped the first Start leaves the pipeline stopped.
// Default: lifecycle.Started
func WithInitialState(s lifecycle.State) Option {
	return func(p *Pipeline) {
		p.initialState = s
	}
}

// WithBackPressureStrategy overrides the admission strategy otherwise taken
// from the source (or Wait when there is no source).
func WithBackPressureStrategy(s backpressure.Strategy) Option {
	return func(p *Pipeline) {
		p.backPressure = &s
	}
}

// WithWaitInterval sets the retry interval of the Wait admission strategy.
// Default: backpressure.DefaultWaitInterval
func WithWaitInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		p.waitInterval = d
	}
}

// WithNotificationDispatcher sets where lifecycle and event notifications
// are sent.
func WithNotificationDispatcher(d notification.Dispatcher) Option {
	return func(p *Pipeline) {
		p.dispatcher = d
	}
}

// WithLogger sets the logger.
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics records event and processor metrics to m.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithTracing enables event and processor spans on the global OTel tracer
// provider.
func WithTracing(enabled bool) Option {
	return func(p *Pipeline) {
		if enabled {
			p.spans = observability.NewSpanManager()
		} else {
			p.spans = observability.NoopSpanManager{}
		}
	}
}

// WithStateStore persists the desired run state so a pipeline stopped by an
// operator stays stopped across restarts.
func WithStateStore(s statestore.Store) Option {
	return func(p *Pipeline) {
		p.stateStore = s
	}
}

// WithStrictLifecycle makes Stop and Dispose return the first component
// failure instead of logging and continuing.
func WithStrictLifecycle(strict bool) Option {
	return func(p *Pipeline) {
		p.strict = strict
	}
}

// WithStatistics enables or disables statistics recording.
// Default: enabled
func WithStatistics(enabled bool) Option {
	return func(p *Pipeline) {
		p.stats.SetEnabled(enabled)
	}
}

// WithCompletionQueueSize bounds the queue of pending completion hooks.
// Default: DefaultCompletionQueueSize
func WithCompletionQueueSize(n int) Option {
	return func(p *Pipeline) {
		p.completionSize = n
	}
}

// NewPipeline creates a pipeline. Options are validated by Initialise.
func NewPipeline(name string, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:         name,
		lc:           lifecycle.NewManager(name),
		strategy:     strategy.NewDirect(),
		handler:      exception.Propagate(),
		initialState: lifecycle.Started,
		dispatcher:   notification.Noop{},
		logger:       slog.Default(),
		metrics:      observability.NoopMetrics{},
		spans:        observability.NoopSpanManager{},
		stats:        NewStatistics(true),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lc.OnTransition(p.onTransition)
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// State returns the lifecycle state.
func (p *Pipeline) State() lifecycle.State { return p.lc.State() }

// IsStarted reports whether the pipeline is started.
func (p *Pipeline) IsStarted() bool { return p.lc.IsStarted() }

// IsStopped reports whether the pipeline is stopped.
func (p *Pipeline) IsStopped() bool { return p.lc.IsStopped() }

// Source returns the source, or nil.
func (p *Pipeline) Source() MessageSource { return p.source }

// Chain returns the built chain, or nil before Initialise.
func (p *Pipeline) Chain() *Chain { return p.chain }

// ProcessingStrategy returns the processing strategy.
func (p *Pipeline) ProcessingStrategy() strategy.ProcessingStrategy { return p.strategy }

// ExceptionHandler returns the exception handler.
func (p *Pipeline) ExceptionHandler() exception.Handler { return p.handler }

// MaxConcurrency returns the in-flight bound, 0 when unbounded.
func (p *Pipeline) MaxConcurrency() int { return int(p.maxConcurrency) }

// InFlight returns the number of admitted, not yet completed events.
func (p *Pipeline) InFlight() int { return int(p.inFlight.Load()) }

// Statistics returns the pipeline's counters.
func (p *Pipeline) Statistics() *Statistics { return p.stats }

// FlowStats implements observability.StatsSource.
func (p *Pipeline) FlowStats() []observability.FlowStats {
	snap := p.stats.Snapshot()
	rejected := make(map[string]int64, len(snap.Rejected))
	for r, n := range snap.Rejected {
		rejected[r.String()] = n
	}
	return []observability.FlowStats{{
		Flow:      p.name,
		Received:  snap.Received,
		Processed: snap.Processed,
		Failed:    snap.Failed,
		InFlight:  snap.InFlight,
		Rejected:  rejected,
	}}
}

// Initialise validates the pipeline and builds its chain. On failure every
// component is disposed and an *InitialisationError is returned.
func (p *Pipeline) Initialise(ctx context.Context) error {
	return p.lc.FireInitialise(ctx, func(ctx context.Context) error {
		if err := p.initialise(ctx); err != nil {
			_ = p.dispose(ctx, false)
			p.torndown.Store(true)
			observability.LogLifecycleError(p.logger, p.name, lifecycle.PhaseInitialise.String(), err)
			return &InitialisationError{Flow: p.name, Err: err}
		}
		p.torndown.Store(false)
		return nil
	})
}

func (p *Pipeline) validate() error {
	var errs []error
	if p.name == "" {
		errs = append(errs, fmt.Errorf("%w: name is required", ErrInvalidConfig))
	}
	if p.maxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("%w: max concurrency must not be negative, got %d", ErrInvalidConfig, p.maxConcurrency))
	}
	if p.strategy == nil {
		errs = append(errs, fmt.Errorf("%w: processing strategy is required", ErrInvalidConfig))
	}
	if p.initialState != lifecycle.Started && p.initialState != lifecycle.Stopped {
		errs = append(errs, fmt.Errorf("%w: initial state must be started or stopped, got %s", ErrInvalidConfig, p.initialState))
	}
	if err := exception.Validate(p.handler); err != nil {
		errs = append(errs, err)
	}
	if p.logger == nil || p.dispatcher == nil || p.metrics == nil || p.spans == nil {
		errs = append(errs, fmt.Errorf("%w: nil collaborator", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

func (p *Pipeline) initialise(ctx context.Context) error {
	if err := lifecycle.Initialise(ctx, p.handler); err != nil {
		return fmt.Errorf("exception handler: %w", err)
	}
	if err := p.validate(); err != nil {
		return err
	}

	interceptors := slices.Clone(p.interceptors)
	if p.instrumented() {
		interceptors = append(interceptors, InstrumentProcessors(p.name, p.spans, p.metrics, p.logger))
	}

	chain, err := NewChainBuilder(p.name).
		Chain(p.processors...).
		AllowEmpty().
		Intercept(interceptors...).
		Build()
	if err != nil {
		return err
	}
	p.chain = chain

	if p.source != nil {
		p.source.SetListener(p)
		if err := lifecycle.Initialise(ctx, p.source); err != nil {
			return fmt.Errorf("source: %w", err)
		}
	}
	if err := chain.Initialise(ctx); err != nil {
		return err
	}
	if err := lifecycle.Initialise(ctx, p.strategy); err != nil {
		return fmt.Errorf("processing strategy: %w", err)
	}

	p.selector = backpressure.NewSelector(p.name, p.admissionStrategy(), p.waitInterval)
	p.completion = newCompletionScheduler(p.completionSize, p.logger)
	return nil
}

func (p *Pipeline) instrumented() bool {
	_, noSpans := p.spans.(observability.NoopSpanManager)
	_, noMetrics := p.metrics.(observability.NoopMetrics)
	return !noSpans || !noMetrics
}

func (p *Pipeline) admissionStrategy() backpressure.Strategy {
	switch {
	case p.backPressure != nil:
		return *p.backPressure
	case p.source != nil:
		return p.source.BackPressureStrategy()
	default:
		return backpressure.Wait
	}
}

// Start starts the pipeline.
//
// On the first Start, a pipeline recorded as stopped in its state store,
// or with no record and initial state Stopped, passes through Started into
// Stopped without activating its source. Otherwise the strategy, sink and
// chain are started, events are admitted, and the source is started last.
// A failure rolls back whatever was started.
func (p *Pipeline) Start(ctx context.Context) error {
	first := p.started.CompareAndSwap(false, true)
	if first && p.lc.CheckPhase(lifecycle.PhaseStart) == nil {
		stay, err := p.stayStopped(ctx)
		if err != nil {
			p.started.Store(false)
			return err
		}
		if stay {
			if err := p.lc.FireStart(ctx, nil); err != nil {
				return err
			}
			return p.lc.FireStop(ctx, nil)
		}
	}

	if err := p.lc.FireStart(ctx, p.start); err != nil {
		if first {
			p.started.Store(false)
		}
		return err
	}
	return p.recordState(ctx, statestore.Started)
}

func (p *Pipeline) stayStopped(ctx context.Context) (bool, error) {
	initial := statestore.Started
	if p.initialState == lifecycle.Stopped {
		initial = statestore.Stopped
	}
	start, err := statestore.MustStart(ctx, p.stateStore, p.name, initial)
	if err != nil {
		return false, fmt.Errorf("load run state for %s: %w", p.name, err)
	}
	return !start, nil
}

func (p *Pipeline) start(ctx context.Context) error {
	if err := lifecycle.Start(ctx, p.strategy); err != nil {
		return fmt.Errorf("processing strategy: %w", err)
	}

	sink, err := p.strategy.CreateSink(p.name, p.execute)
	if err != nil {
		_ = lifecycle.Stop(ctx, p.strategy)
		return fmt.Errorf("create sink: %w", err)
	}
	p.setSink(sink)

	if err := p.chain.Start(ctx); err != nil {
		p.setSink(nil)
		_ = sink.Dispose(ctx)
		_ = lifecycle.Stop(ctx, p.strategy)
		return err
	}

	p.canProcess.Store(true)

	if err := lifecycle.Start(ctx, p.source); err != nil {
		p.canProcess.Store(false)
		_ = p.chain.Stop(ctx)
		p.setSink(nil)
		_ = sink.Dispose(ctx)
		_ = lifecycle.Stop(ctx, p.strategy)
		return fmt.Errorf("source: %w", err)
	}
	return nil
}

// Stop stops the pipeline and records it as stopped in the state store.
// The source is stopped first, then admission ends and the sink drains,
// then the chain and strategy stop. Component failures are logged and
// skipped unless strict lifecycle is on.
func (p *Pipeline) Stop(ctx context.Context) error {
	if err := p.lc.FireStop(ctx, p.stop); err != nil {
		return err
	}
	return p.recordState(ctx, statestore.Stopped)
}

func (p *Pipeline) stop(ctx context.Context) error {
	return p.runSteps(ctx, "stop", p.strict, []step{
		{"source", func(ctx context.Context) error { return lifecycle.Stop(ctx, p.source) }},
		{"admission", func(context.Context) error { p.canProcess.Store(false); return nil }},
		{"sink", p.disposeSink},
		{"chain", p.chain.Stop},
		{"processing strategy", func(ctx context.Context) error { return lifecycle.Stop(ctx, p.strategy) }},
	})
}

// Dispose releases every resource. A started pipeline is stopped first.
// Disposing twice is a no-op. Events still in flight are completed with
// ErrFlowDisposed.
func (p *Pipeline) Dispose(ctx context.Context) error {
	return p.lc.FireDispose(ctx, p.stop, func(ctx context.Context) error {
		if p.torndown.Load() {
			return nil
		}
		return p.dispose(ctx, p.strict)
	})
}

func (p *Pipeline) dispose(ctx context.Context, strict bool) error {
	steps := []step{
		{"completion scheduler", p.closeCompletion},
	}
	if p.chain != nil {
		steps = append(steps, step{"chain", p.chain.Dispose})
	}
	steps = append(steps,
		step{"source", func(ctx context.Context) error { return lifecycle.Dispose(ctx, p.source) }},
		step{"processing strategy", func(ctx context.Context) error { return lifecycle.Dispose(ctx, p.strategy) }},
		step{"exception handler", func(ctx context.Context) error { return lifecycle.Dispose(ctx, p.handler) }},
	)
	return p.runSteps(ctx, "dispose", strict, steps)
}

type step struct {
	component string
	fn        func(ctx context.Context) error
}

func (p *Pipeline) runSteps(ctx context.Context, op string, strict bool, steps []step) error {
	for _, s := range steps {
		err := s.fn(ctx)
		if err == nil {
			continue
		}
		lerr := &LifecycleError{Flow: p.name, Component: s.component, Op: op, Err: err}
		if strict {
			return lerr
		}
		observability.LogStopFailure(p.logger, p.name, s.component, err)
	}
	return nil
}

func (p *Pipeline) disposeSink(ctx context.Context) error {
	p.sinkMu.Lock()
	sink := p.sink
	p.sink = nil
	p.sinkMu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Dispose(ctx)
}

func (p *Pipeline) setSink(s strategy.Sink) {
	p.sinkMu.Lock()
	p.sink = s
	p.sinkMu.Unlock()
}

func (p *Pipeline) currentSink() strategy.Sink {
	p.sinkMu.RLock()
	defer p.sinkMu.RUnlock()
	return p.sink
}

// closeCompletion drains queued completion hooks, then fails the events
// that never completed.
func (p *Pipeline) closeCompletion(ctx context.Context) error {
	var err error
	if p.completion != nil {
		err = p.completion.close(ctx)
	}
	p.pending.Range(func(k, _ any) bool {
		k.(*event.Context).Error(ErrFlowDisposed)
		return true
	})
	return err
}

func (p *Pipeline) recordState(ctx context.Context, s statestore.State) error {
	if p.stateStore == nil {
		return nil
	}
	if err := p.stateStore.Save(ctx, p.name, s); err != nil {
		return fmt.Errorf("record run state for %s: %w", p.name, err)
	}
	return nil
}

func (p *Pipeline) onTransition(t lifecycle.Transition) {
	var action notification.Action
	switch t.Phase {
	case lifecycle.PhaseInitialise:
		action = notification.Initialised
	case lifecycle.PhaseStart:
		action = notification.Started
	case lifecycle.PhaseStop:
		action = notification.Stopped
	case lifecycle.PhaseDispose:
		action = notification.Disposed
	default:
		return
	}
	observability.LogLifecycle(p.logger, p.name, t.Phase.String(), t.To.String())
	p.dispatcher.Dispatch(notification.Notification{
		Action:    action,
		Flow:      p.name,
		Timestamp: time.Now(),
	})
}
