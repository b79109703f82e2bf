package flowline

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultCompletionQueueSize bounds the completion scheduler's queue.
const DefaultCompletionQueueSize = 1024

// completionScheduler runs event completion hooks on a single goroutine so
// they never run on a processing worker. Once closed, hooks run inline on
// the submitting goroutine.
type completionScheduler struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan func()
	done   chan struct{}
	logger *slog.Logger
}

func newCompletionScheduler(size int, logger *slog.Logger) *completionScheduler {
	if size <= 0 {
		size = DefaultCompletionQueueSize
	}
	s := &completionScheduler{
		tasks:  make(chan func(), size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.loop()
	return s
}

func (s *completionScheduler) loop() {
	defer close(s.done)
	for fn := range s.tasks {
		s.run(fn)
	}
}

func (s *completionScheduler) run(fn func()) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("completion hook panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// submit queues fn, blocking while the queue is full.
func (s *completionScheduler) submit(fn func()) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		s.run(fn)
		return
	}
	s.tasks <- fn
	s.mu.RUnlock()
}

// close stops accepting hooks and waits for queued ones to run, or for ctx
// to end. Closing twice is a no-op.
func (s *completionScheduler) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.tasks)
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
