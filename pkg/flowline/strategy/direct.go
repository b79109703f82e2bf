package strategy

import (
	"context"
	"sync/atomic"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// Direct runs every event on the caller's goroutine. It never applies
// back-pressure of its own; the pipeline's concurrency ceiling still
// applies.
type Direct struct{}

// Compile-time interface check.
var _ ProcessingStrategy = (*Direct)(nil)

// NewDirect creates a synchronous strategy.
func NewDirect() *Direct {
	return &Direct{}
}

// CreateSink implements ProcessingStrategy.
func (d *Direct) CreateSink(_ string, fn ExecuteFunc) (Sink, error) {
	return &directSink{fn: fn}, nil
}

// IsSynchronous implements ProcessingStrategy.
func (d *Direct) IsSynchronous() bool {
	return true
}

// CheckBackpressureAccepting implements ProcessingStrategy.
func (d *Direct) CheckBackpressureAccepting(context.Context, *event.Event) error {
	return nil
}

// CheckBackpressureEmitting implements ProcessingStrategy.
func (d *Direct) CheckBackpressureEmitting(*event.Event) error {
	return nil
}

type directSink struct {
	fn       ExecuteFunc
	disposed atomic.Bool
}

func (s *directSink) Accept(ctx context.Context, e *event.Event) error {
	return s.Emit(ctx, e)
}

func (s *directSink) Emit(ctx context.Context, e *event.Event) error {
	if s.disposed.Load() {
		return ErrSinkDisposed
	}
	s.fn(ctx, e)
	return nil
}

func (s *directSink) Dispose(context.Context) error {
	s.disposed.Store(true)
	return nil
}
