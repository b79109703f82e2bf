// Package lifecycle provides the four-phase life-cycle state machine shared
// by pipelines and the components they own.
//
// States advance NotInitialised → Initialised → Started ⇄ Stopped, and
// Disposed is terminal and reachable from any state. Transitions are
// serialised per Manager; only one may be in flight at a time.
//
// Components opt into life-cycle propagation by implementing any of the
// capability interfaces Initialisable, Startable, Stoppable and Disposable.
// The package-level helpers invoke them when present.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// State is a life-cycle state.
type State int32

const (
	// NotInitialised is the state of a freshly built construct.
	NotInitialised State = iota
	// Initialised means the construct validated and built its internals.
	Initialised
	// Started means the construct is processing.
	Started
	// Stopped means the construct was started and then stopped.
	Stopped
	// Disposed is terminal.
	Disposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case NotInitialised:
		return "not_initialised"
	case Initialised:
		return "initialised"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Phase is a life-cycle transition.
type Phase int

const (
	PhaseInitialise Phase = iota
	PhaseStart
	PhaseStop
	PhaseDispose
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseInitialise:
		return "initialise"
	case PhaseStart:
		return "start"
	case PhaseStop:
		return "stop"
	case PhaseDispose:
		return "dispose"
	default:
		return "unknown"
	}
}

// target returns the state a successful phase advances to.
func (p Phase) target() State {
	switch p {
	case PhaseInitialise:
		return Initialised
	case PhaseStart:
		return Started
	case PhaseStop:
		return Stopped
	default:
		return Disposed
	}
}

// legalFrom reports whether the phase may run from state s.
func (p Phase) legalFrom(s State) bool {
	switch p {
	case PhaseInitialise:
		return s == NotInitialised
	case PhaseStart:
		return s == Initialised || s == Stopped
	case PhaseStop:
		return s == Started
	case PhaseDispose:
		return s != Disposed
	default:
		return false
	}
}

// ErrIllegalPhase indicates a transition was attempted out of order.
var ErrIllegalPhase = errors.New("illegal lifecycle phase")

// PhaseError reports an out-of-order transition. These are programming or
// configuration errors and are never retried.
type PhaseError struct {
	// Name is the construct name.
	Name string
	// Phase is the transition that was attempted.
	Phase Phase
	// State is the state the construct was in.
	State State
}

// Error implements the error interface.
func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: cannot %s while %s", e.Name, e.Phase, e.State)
}

// Unwrap returns ErrIllegalPhase for errors.Is support.
func (e *PhaseError) Unwrap() error {
	return ErrIllegalPhase
}

// Initialisable is implemented by components that need setup before start.
type Initialisable interface {
	Initialise(ctx context.Context) error
}

// Startable is implemented by components that can be started.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable is implemented by components that can be stopped.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// Disposable is implemented by components holding releasable resources.
type Disposable interface {
	Dispose(ctx context.Context) error
}

// Initialise calls v.Initialise if v is Initialisable.
func Initialise(ctx context.Context, v any) error {
	if i, ok := v.(Initialisable); ok {
		return i.Initialise(ctx)
	}
	return nil
}

// Start calls v.Start if v is Startable.
func Start(ctx context.Context, v any) error {
	if s, ok := v.(Startable); ok {
		return s.Start(ctx)
	}
	return nil
}

// Stop calls v.Stop if v is Stoppable.
func Stop(ctx context.Context, v any) error {
	if s, ok := v.(Stoppable); ok {
		return s.Stop(ctx)
	}
	return nil
}

// Dispose calls v.Dispose if v is Disposable.
func Dispose(ctx context.Context, v any) error {
	if d, ok := v.(Disposable); ok {
		return d.Dispose(ctx)
	}
	return nil
}
