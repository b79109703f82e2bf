package flowline

import (
	"context"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// Listener receives events from a source. Pipeline implements it.
type Listener interface {
	Dispatch(ctx context.Context, e *event.Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, e *event.Event) error

// Dispatch implements Listener.
func (f ListenerFunc) Dispatch(ctx context.Context, e *event.Event) error {
	return f(ctx, e)
}

// MessageSource produces events for a pipeline. The pipeline sets itself as
// the listener during Initialise and starts the source only after the rest
// of the pipeline is running. Sources may implement the lifecycle
// capability interfaces.
type MessageSource interface {
	SetListener(l Listener)

	// BackPressureStrategy says how the pipeline should admit this
	// source's events when saturated.
	BackPressureStrategy() backpressure.Strategy
}
