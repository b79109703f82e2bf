// Package notification carries lifecycle and per-event progress
// notifications from pipelines to interested listeners.
//
// Dispatch is fire-and-forget: emitters never see listener errors and never
// wait for a return value.
package notification

import (
	"time"
)

// Action identifies what happened.
type Action int

const (
	// Construct lifecycle actions.
	Initialised Action = iota
	Started
	Stopped
	Disposed

	// Per-event actions.
	ProcessStart
	ProcessEnd
	ProcessComplete
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Initialised:
		return "initialised"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case Disposed:
		return "disposed"
	case ProcessStart:
		return "process_start"
	case ProcessEnd:
		return "process_end"
	case ProcessComplete:
		return "process_complete"
	default:
		return "unknown"
	}
}

// IsLifecycle reports whether the action is a construct lifecycle action.
func (a Action) IsLifecycle() bool {
	return a <= Disposed
}

// Notification is one dispatched notification.
type Notification struct {
	Action Action
	// Flow is the name of the emitting pipeline.
	Flow string
	// EventID and CorrelationID are set for per-event actions.
	EventID       string
	CorrelationID string
	// Err is set on ProcessComplete when the event failed.
	Err       error
	Timestamp time.Time
}

// Dispatcher receives notifications.
type Dispatcher interface {
	Dispatch(n Notification)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(n Notification)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(n Notification) {
	f(n)
}

// Noop discards every notification.
type Noop struct{}

// Dispatch implements Dispatcher.
func (Noop) Dispatch(Notification) {}

// Compile-time interface checks.
var (
	_ Dispatcher = Noop{}
	_ Dispatcher = DispatcherFunc(nil)
	_ Dispatcher = (*Bus)(nil)
)

// Multi fans a notification out to several dispatchers in order.
func Multi(dispatchers ...Dispatcher) Dispatcher {
	return DispatcherFunc(func(n Notification) {
		for _, d := range dispatchers {
			d.Dispatch(n)
		}
	})
}
