package strategy

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// PooledConfig configures a Pooled strategy.
type PooledConfig struct {
	// MaxWorkers bounds the number of events running at once.
	// Default: 2 * GOMAXPROCS
	MaxWorkers int
}

// Pooled runs each admitted event on its own goroutine, bounded by a
// weighted semaphore. A saturated pool is reported as
// REQUIRED_SCHEDULER_BUSY.
type Pooled struct {
	max  int64
	sem  *semaphore.Weighted
	busy atomic.Int64

	mu   sync.RWMutex
	flow string
}

// Compile-time interface check.
var _ ProcessingStrategy = (*Pooled)(nil)

// NewPooled creates a pooled strategy.
func NewPooled(cfg PooledConfig) *Pooled {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 2 * runtime.GOMAXPROCS(0)
	}
	return &Pooled{
		max: int64(cfg.MaxWorkers),
		sem: semaphore.NewWeighted(int64(cfg.MaxWorkers)),
	}
}

// CreateSink implements ProcessingStrategy.
func (p *Pooled) CreateSink(flow string, fn ExecuteFunc) (Sink, error) {
	p.mu.Lock()
	p.flow = flow
	p.mu.Unlock()
	return &pooledSink{pool: p, flow: flow, fn: fn}, nil
}

// IsSynchronous implements ProcessingStrategy.
func (p *Pooled) IsSynchronous() bool {
	return false
}

// CheckBackpressureAccepting implements ProcessingStrategy. It blocks until
// a worker is free or ctx ends.
func (p *Pooled) CheckBackpressureAccepting(ctx context.Context, _ *event.Event) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return backpressure.Interrupted(p.flowName(), err)
	}
	p.sem.Release(1)
	return nil
}

// CheckBackpressureEmitting implements ProcessingStrategy.
func (p *Pooled) CheckBackpressureEmitting(*event.Event) error {
	if p.busy.Load() >= p.max {
		return backpressure.New(p.flowName(), backpressure.RequiredSchedulerBusy)
	}
	return nil
}

// Busy returns the number of events currently running.
func (p *Pooled) Busy() int {
	return int(p.busy.Load())
}

// Stop waits for running events to finish or ctx to end.
func (p *Pooled) Stop(ctx context.Context) error {
	return p.drain(ctx)
}

// drain takes every permit, which succeeds only once no event is running.
func (p *Pooled) drain(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, p.max); err != nil {
		return err
	}
	p.sem.Release(p.max)
	return nil
}

func (p *Pooled) flowName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.flow
}

func (p *Pooled) run(ctx context.Context, fn ExecuteFunc, e *event.Event) {
	p.busy.Add(1)
	go func() {
		defer func() {
			p.busy.Add(-1)
			p.sem.Release(1)
		}()
		fn(context.WithoutCancel(ctx), e)
	}()
}

type pooledSink struct {
	pool     *Pooled
	flow     string
	fn       ExecuteFunc
	disposed atomic.Bool
}

func (s *pooledSink) Accept(ctx context.Context, e *event.Event) error {
	if s.disposed.Load() {
		return ErrSinkDisposed
	}
	if err := s.pool.sem.Acquire(ctx, 1); err != nil {
		return backpressure.Interrupted(s.flow, err)
	}
	s.pool.run(ctx, s.fn, e)
	return nil
}

func (s *pooledSink) Emit(ctx context.Context, e *event.Event) error {
	if s.disposed.Load() {
		return ErrSinkDisposed
	}
	if !s.pool.sem.TryAcquire(1) {
		return backpressure.New(s.flow, backpressure.RequiredSchedulerBusy)
	}
	s.pool.run(ctx, s.fn, e)
	return nil
}

func (s *pooledSink) Dispose(ctx context.Context) error {
	s.disposed.Store(true)
	return s.pool.drain(ctx)
}
