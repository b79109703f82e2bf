// Package statestore persists the last requested run state of each flow so
// a restarted process can bring flows back up the way they were left.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State is the persisted run state of a flow.
type State string

const (
	Started State = "started"
	Stopped State = "stopped"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s == Started || s == Stopped
}

// Store persists flow run states.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save records the state of a flow, overwriting any previous record.
	Save(ctx context.Context, flow string, state State) error

	// Load returns the recorded state.
	// Returns ErrNotFound if the flow has no record.
	Load(ctx context.Context, flow string) (State, error)

	// List returns every record keyed by flow name.
	// Returns an empty map (not error) if nothing is recorded.
	List(ctx context.Context) (map[string]State, error)

	// Delete removes a flow's record.
	// Returns nil if the flow has no record.
	Delete(ctx context.Context, flow string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Record is a stored state with its last update time.
type Record struct {
	Flow      string
	State     State
	UpdatedAt time.Time
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a flow has no recorded state.
	ErrNotFound = errors.New("flow state not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("state store closed")

	// ErrInvalidState indicates an unknown State value.
	ErrInvalidState = errors.New("invalid flow state")
)

// MustStart reports whether flow should be started on its first start
// request. A recorded state wins; with no record, or a nil store, the
// answer follows initial.
func MustStart(ctx context.Context, store Store, flow string, initial State) (bool, error) {
	if store == nil {
		return initial != Stopped, nil
	}
	state, err := store.Load(ctx, flow)
	if errors.Is(err, ErrNotFound) {
		return initial != Stopped, nil
	}
	if err != nil {
		return false, fmt.Errorf("load state for %s: %w", flow, err)
	}
	return state != Stopped, nil
}

func validate(state State) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	return nil
}
