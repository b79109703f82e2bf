// Package strategy provides the processing strategies a pipeline delegates
// event scheduling to.
//
// A ProcessingStrategy creates a Sink bound to a pipeline's execute
// function. The pipeline admits an event, then hands it to the sink, which
// runs the function synchronously or on its own workers. Strategies report
// saturation as typed back-pressure errors so the pipeline can wait or fail
// fast.
//
// Three strategies are provided:
//   - Direct runs events on the caller's goroutine.
//   - Queued buffers events in a bounded queue drained by a fixed set of
//     workers.
//   - Pooled runs each event on its own goroutine, bounded by a semaphore.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// ExecuteFunc runs one admitted event to completion. It reports the outcome
// through the event's context, never by return value.
type ExecuteFunc func(ctx context.Context, e *event.Event)

// Sink accepts admitted events and drives them through an ExecuteFunc.
type Sink interface {
	// Accept schedules e, blocking until there is room or ctx ends.
	Accept(ctx context.Context, e *event.Event) error

	// Emit schedules e without blocking for capacity. It returns a
	// *backpressure.Error if the sink is saturated.
	Emit(ctx context.Context, e *event.Event) error

	// Dispose stops accepting events and waits for scheduled ones to run,
	// or for ctx to end.
	Dispose(ctx context.Context) error
}

// ProcessingStrategy decides how admitted events are scheduled.
// Implementations may also implement the lifecycle capability interfaces.
type ProcessingStrategy interface {
	// CreateSink binds a new sink to fn for the named pipeline.
	CreateSink(flow string, fn ExecuteFunc) (Sink, error)

	// IsSynchronous reports whether events run on the caller's goroutine.
	IsSynchronous() bool

	// CheckBackpressureAccepting checks capacity for a caller prepared to
	// wait. It may block until capacity is available or ctx ends.
	CheckBackpressureAccepting(ctx context.Context, e *event.Event) error

	// CheckBackpressureEmitting checks capacity without blocking.
	CheckBackpressureEmitting(e *event.Event) error
}

// ErrSinkDisposed indicates an event was offered to a disposed sink.
var ErrSinkDisposed = errors.New("sink disposed")

// Kind names a built-in strategy.
type Kind string

const (
	KindDirect Kind = "direct"
	KindQueued Kind = "queued"
	KindPooled Kind = "pooled"
)

// Options configures New.
type Options struct {
	// Workers is the number of queue consumers (queued) or the maximum
	// number of concurrently running events (pooled).
	Workers int
	// BufferSize is the queue capacity (queued only).
	BufferSize int
}

// New creates a built-in strategy by kind. An empty kind yields Direct.
func New(kind Kind, opts Options) (ProcessingStrategy, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case "", KindDirect:
		return NewDirect(), nil
	case KindQueued:
		return NewQueued(QueuedConfig{Workers: opts.Workers, BufferSize: opts.BufferSize}), nil
	case KindPooled:
		return NewPooled(PooledConfig{MaxWorkers: opts.Workers}), nil
	default:
		return nil, fmt.Errorf("unknown processing strategy %q", kind)
	}
}
