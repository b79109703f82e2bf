package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
)

// PhaseFunc performs the work of a transition. A non-nil error aborts the
// transition and leaves the state unchanged, except for dispose.
type PhaseFunc func(ctx context.Context) error

// Transition describes a completed state change.
type Transition struct {
	Name  string
	Phase Phase
	From  State
	To    State
}

// Manager guards the life-cycle state of one construct.
// Queries are lock-free; transitions are mutually exclusive.
type Manager struct {
	name string

	mu       sync.Mutex
	state    atomic.Int32
	stopping atomic.Bool

	listenersMu sync.RWMutex
	listeners   []func(Transition)
}

// NewManager creates a manager in the NotInitialised state.
func NewManager(name string) *Manager {
	return &Manager{name: name}
}

// Name returns the construct name.
func (m *Manager) Name() string {
	return m.name
}

// State returns the current state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsInitialised reports whether initialisation succeeded and the construct
// is not yet disposed.
func (m *Manager) IsInitialised() bool {
	s := m.State()
	return s != NotInitialised && s != Disposed
}

// IsStarted reports whether the construct is started.
func (m *Manager) IsStarted() bool {
	return m.State() == Started
}

// IsStopped reports whether the construct is stopped.
func (m *Manager) IsStopped() bool {
	return m.State() == Stopped
}

// IsStopping reports whether a stop transition is in flight.
func (m *Manager) IsStopping() bool {
	return m.stopping.Load()
}

// IsDisposed reports whether the construct is disposed.
func (m *Manager) IsDisposed() bool {
	return m.State() == Disposed
}

// OnTransition registers fn to be called after every successful transition.
// Listeners run while the transition lock is held and must not call back
// into the manager.
func (m *Manager) OnTransition(fn func(Transition)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// CheckPhase returns a *PhaseError if phase is not legal from the current
// state.
func (m *Manager) CheckPhase(phase Phase) error {
	if s := m.State(); !phase.legalFrom(s) {
		return &PhaseError{Name: m.name, Phase: phase, State: s}
	}
	return nil
}

// FireInitialise runs fn and advances to Initialised.
func (m *Manager) FireInitialise(ctx context.Context, fn PhaseFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fireLocked(ctx, PhaseInitialise, fn)
}

// FireStart runs fn and advances to Started.
func (m *Manager) FireStart(ctx context.Context, fn PhaseFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fireLocked(ctx, PhaseStart, fn)
}

// FireStop runs fn and advances to Stopped.
func (m *Manager) FireStop(ctx context.Context, fn PhaseFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fireLocked(ctx, PhaseStop, fn)
}

// FireDispose advances to Disposed. If the construct is started, stop runs
// first as a full stop transition. Disposing a disposed construct is a
// no-op. The state becomes Disposed even if fn fails, and fn's error is
// returned.
func (m *Manager) FireDispose(ctx context.Context, stop, fn PhaseFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == Disposed {
		return nil
	}
	if m.State() == Started {
		if err := m.fireLocked(ctx, PhaseStop, stop); err != nil {
			return err
		}
	}

	from := m.State()
	var err error
	if fn != nil {
		err = fn(ctx)
	}
	m.advanceLocked(PhaseDispose, from)
	return err
}

func (m *Manager) fireLocked(ctx context.Context, phase Phase, fn PhaseFunc) error {
	from := m.State()
	if !phase.legalFrom(from) {
		return &PhaseError{Name: m.name, Phase: phase, State: from}
	}

	if phase == PhaseStop {
		m.stopping.Store(true)
		defer m.stopping.Store(false)
	}

	if fn != nil {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	m.advanceLocked(phase, from)
	return nil
}

func (m *Manager) advanceLocked(phase Phase, from State) {
	to := phase.target()
	m.state.Store(int32(to))

	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()

	t := Transition{Name: m.name, Phase: phase, From: from, To: to}
	for _, fn := range listeners {
		fn(t)
	}
}
