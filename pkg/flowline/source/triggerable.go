package source

import (
	"context"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// Triggerable is a source driven by application code. It waits for room
// by default.
type Triggerable struct {
	base
}

// NewTriggerable creates a programmatic source.
func NewTriggerable(name string, opts ...Option) *Triggerable {
	t := &Triggerable{}
	t.init(name, backpressure.Wait, opts)
	return t
}

// Start lets the source emit.
func (t *Triggerable) Start(context.Context) error {
	t.running.Store(true)
	return nil
}

// Stop makes further triggers fail with ErrNotRunning.
func (t *Triggerable) Stop(context.Context) error {
	t.running.Store(false)
	return nil
}

// Trigger wraps payload in an event and dispatches it. The returned event's
// context reports the outcome; on a dispatch error it is nil.
func (t *Triggerable) Trigger(ctx context.Context, payload any, opts ...event.Option) (*event.Event, error) {
	e := t.newEvent(payload, opts)
	if err := t.dispatch(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// TriggerAndWait triggers payload and waits for its result.
func (t *Triggerable) TriggerAndWait(ctx context.Context, payload any, opts ...event.Option) (*event.Event, error) {
	e, err := t.Trigger(ctx, payload, opts...)
	if err != nil {
		return nil, err
	}
	select {
	case <-e.Context().Done():
		return e.Context().Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fire dispatches an event the caller built.
func (t *Triggerable) Fire(ctx context.Context, e *event.Event) error {
	return t.dispatch(ctx, e)
}
