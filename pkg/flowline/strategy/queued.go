package strategy

import (
	"context"
	"sync"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// QueuedConfig configures a Queued strategy.
type QueuedConfig struct {
	// BufferSize is the queue capacity.
	// Default: 256
	BufferSize int

	// Workers is the number of goroutines draining the queue.
	// Default: 1
	Workers int
}

// DefaultQueuedConfig provides reasonable defaults.
var DefaultQueuedConfig = QueuedConfig{
	BufferSize: 256,
	Workers:    1,
}

// Queued buffers events in a bounded queue drained by a fixed set of
// workers. A full queue is reported as
// REQUIRED_SCHEDULER_BUSY_WITH_FULL_BUFFER.
type Queued struct {
	cfg QueuedConfig

	mu   sync.RWMutex
	sink *queuedSink
}

// Compile-time interface check.
var _ ProcessingStrategy = (*Queued)(nil)

// NewQueued creates a queued strategy.
func NewQueued(cfg QueuedConfig) *Queued {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultQueuedConfig.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultQueuedConfig.Workers
	}
	return &Queued{cfg: cfg}
}

// CreateSink implements ProcessingStrategy. It starts the sink's workers.
func (q *Queued) CreateSink(flow string, fn ExecuteFunc) (Sink, error) {
	s := &queuedSink{
		flow:  flow,
		fn:    fn,
		queue: make(chan job, q.cfg.BufferSize),
		done:  make(chan struct{}),
	}
	s.workers.Add(q.cfg.Workers)
	for i := 0; i < q.cfg.Workers; i++ {
		go s.work()
	}
	go func() {
		s.workers.Wait()
		close(s.done)
	}()

	q.mu.Lock()
	q.sink = s
	q.mu.Unlock()
	return s, nil
}

// IsSynchronous implements ProcessingStrategy.
func (q *Queued) IsSynchronous() bool {
	return false
}

// CheckBackpressureAccepting implements ProcessingStrategy. A queued
// strategy does not block here; a waiting caller retries.
func (q *Queued) CheckBackpressureAccepting(_ context.Context, e *event.Event) error {
	return q.CheckBackpressureEmitting(e)
}

// CheckBackpressureEmitting implements ProcessingStrategy.
func (q *Queued) CheckBackpressureEmitting(*event.Event) error {
	q.mu.RLock()
	s := q.sink
	q.mu.RUnlock()
	if s == nil {
		return nil
	}
	if len(s.queue) >= cap(s.queue) {
		return backpressure.New(s.flow, backpressure.RequiredSchedulerBusyWithFullBuffer)
	}
	return nil
}

// Pending returns the number of queued events not yet picked up.
func (q *Queued) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.sink == nil {
		return 0
	}
	return len(q.sink.queue)
}

type job struct {
	ctx context.Context
	e   *event.Event
}

type queuedSink struct {
	flow string
	fn   ExecuteFunc

	// mu guards sends against close; senders hold it for reading.
	mu       sync.RWMutex
	disposed bool
	queue    chan job
	workers  sync.WaitGroup
	done     chan struct{}
}

func (s *queuedSink) work() {
	defer s.workers.Done()
	for j := range s.queue {
		s.fn(j.ctx, j.e)
	}
}

func (s *queuedSink) Accept(ctx context.Context, e *event.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		return ErrSinkDisposed
	}
	select {
	case s.queue <- job{ctx: context.WithoutCancel(ctx), e: e}:
		return nil
	case <-ctx.Done():
		return backpressure.Interrupted(s.flow, ctx.Err())
	}
}

func (s *queuedSink) Emit(ctx context.Context, e *event.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		return ErrSinkDisposed
	}
	select {
	case s.queue <- job{ctx: context.WithoutCancel(ctx), e: e}:
		return nil
	default:
		return backpressure.New(s.flow, backpressure.RequiredSchedulerBusyWithFullBuffer)
	}
}

// Dispose closes the queue and waits for workers to drain it.
func (s *queuedSink) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if !s.disposed {
		s.disposed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
