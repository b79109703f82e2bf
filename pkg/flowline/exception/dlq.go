package exception

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// FailedEvent records an event whose processing failed.
type FailedEvent struct {
	EventID       string         `json:"event_id"`
	CorrelationID string         `json:"correlation_id"`
	Flow          string         `json:"flow,omitempty"`
	Payload       any            `json:"payload"`
	Variables     map[string]any `json:"variables,omitempty"`
	ErrorMessage  string         `json:"error_message"`

	AttemptCount  int       `json:"attempt_count"`
	FirstFailedAt time.Time `json:"first_failed_at"`
	LastFailedAt  time.Time `json:"last_failed_at"`

	// Err is the original error. It is not serialized.
	Err error `json:"-"`
}

// NewFailedEvent creates a FailedEvent from an event and its error.
func NewFailedEvent(flow string, e *event.Event, err error) *FailedEvent {
	now := time.Now().UTC()
	return &FailedEvent{
		EventID:       e.ID(),
		CorrelationID: e.CorrelationID(),
		Flow:          flow,
		Payload:       e.Payload(),
		Variables:     e.Variables(),
		ErrorMessage:  err.Error(),
		AttemptCount:  1,
		FirstFailedAt: now,
		LastFailedAt:  now,
		Err:           err,
	}
}

// Event rebuilds a fresh event for redelivery, keeping the correlation id.
func (f *FailedEvent) Event() *event.Event {
	return event.New(f.Payload,
		event.WithCorrelationID(f.CorrelationID),
		event.WithVariables(maps.Clone(f.Variables)),
	)
}

// DeadLetterQueue stores failed events for inspection or redelivery.
type DeadLetterQueue interface {
	// Enqueue adds a failed event.
	Enqueue(ctx context.Context, failed *FailedEvent) error

	// Dequeue removes and returns up to limit events, oldest first.
	Dequeue(ctx context.Context, limit int) ([]*FailedEvent, error)

	// Len returns the number of queued events.
	Len() int
}

// ErrDLQFull indicates the dead letter queue reached its size limit.
var ErrDLQFull = errors.New("dead letter queue is full")

// DLQConfig configures the dead letter queue.
type DLQConfig struct {
	// MaxSize limits the number of events in the DLQ.
	// Default: 10000
	MaxSize int

	// OnEnqueue is called when an event is added.
	OnEnqueue func(*FailedEvent)
}

// DefaultDLQConfig provides reasonable defaults.
var DefaultDLQConfig = DLQConfig{
	MaxSize: 10000,
}

// DLQStats are the queue's lifetime counters.
type DLQStats struct {
	Enqueued int64
	Dequeued int64
	Rejected int64
}

// InMemoryDLQ is an in-memory DeadLetterQueue.
type InMemoryDLQ struct {
	mu     sync.Mutex
	events []*FailedEvent
	cfg    DLQConfig
	stats  DLQStats
}

// Compile-time interface check.
var _ DeadLetterQueue = (*InMemoryDLQ)(nil)

// NewInMemoryDLQ creates an in-memory dead letter queue.
func NewInMemoryDLQ(cfg DLQConfig) *InMemoryDLQ {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultDLQConfig.MaxSize
	}
	return &InMemoryDLQ{cfg: cfg}
}

// Enqueue implements DeadLetterQueue.
func (d *InMemoryDLQ) Enqueue(_ context.Context, failed *FailedEvent) error {
	d.mu.Lock()
	if len(d.events) >= d.cfg.MaxSize {
		d.stats.Rejected++
		d.mu.Unlock()
		return ErrDLQFull
	}
	d.events = append(d.events, failed)
	d.stats.Enqueued++
	d.mu.Unlock()

	if d.cfg.OnEnqueue != nil {
		d.cfg.OnEnqueue(failed)
	}
	return nil
}

// Dequeue implements DeadLetterQueue.
func (d *InMemoryDLQ) Dequeue(_ context.Context, limit int) ([]*FailedEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit <= 0 || limit > len(d.events) {
		limit = len(d.events)
	}
	out := make([]*FailedEvent, limit)
	copy(out, d.events[:limit])
	d.events = d.events[limit:]
	d.stats.Dequeued += int64(limit)
	return out, nil
}

// List returns a snapshot of queued events without removing them.
func (d *InMemoryDLQ) List() []*FailedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FailedEvent, len(d.events))
	copy(out, d.events)
	return out
}

// Len implements DeadLetterQueue.
func (d *InMemoryDLQ) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

// Stats returns the lifetime counters.
func (d *InMemoryDLQ) Stats() DLQStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Replay dequeues up to limit events and redelivers each through dispatch.
// Events that fail again are re-enqueued with their attempt count
// incremented. Returns the number of events redelivered successfully.
func Replay(ctx context.Context, q DeadLetterQueue, limit int, dispatch func(ctx context.Context, e *event.Event) error) (int, error) {
	failed, err := q.Dequeue(ctx, limit)
	if err != nil {
		return 0, err
	}

	var ok int
	var errs []error
	for _, f := range failed {
		if derr := dispatch(ctx, f.Event()); derr != nil {
			f.AttemptCount++
			f.LastFailedAt = time.Now().UTC()
			f.ErrorMessage = derr.Error()
			f.Err = derr
			errs = append(errs, q.Enqueue(ctx, f))
			continue
		}
		ok++
	}
	return ok, errors.Join(errs...)
}

// DeadLetterHandler parks failed events in a DeadLetterQueue. By default
// the event completes successfully with no result; use AndPropagate to fail
// it after parking.
type DeadLetterHandler struct {
	base
	flow  string
	queue DeadLetterQueue
}

// Compile-time interface check.
var _ Handler = (*DeadLetterHandler)(nil)

// DeadLetter creates a handler that parks failures from flow in q.
func DeadLetter(flow string, q DeadLetterQueue, opts ...Option) *DeadLetterHandler {
	return &DeadLetterHandler{base: base{opts: newOptions(opts)}, flow: flow, queue: q}
}

// HandleException implements Handler. If the queue rejects the event, the
// original error is propagated joined with the queue's error.
func (h *DeadLetterHandler) HandleException(ctx context.Context, err error, e *event.Event) (*event.Event, error) {
	if _, perr := h.opts.run(ctx, err, e); perr != nil {
		return nil, perr
	}
	if qerr := h.queue.Enqueue(ctx, NewFailedEvent(h.flow, e, err)); qerr != nil {
		return nil, errors.Join(err, qerr)
	}
	if h.opts.propagate {
		return nil, err
	}
	return nil, nil
}
