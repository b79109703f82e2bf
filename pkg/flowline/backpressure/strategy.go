package backpressure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Strategy is a source's preference for handling a saturated pipeline.
type Strategy int

const (
	// Wait blocks the caller and retries admission until it succeeds or is
	// interrupted. Events are never dropped.
	Wait Strategy = iota
	// FailFast attempts admission once and returns a typed error on
	// rejection.
	FailFast
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Wait:
		return "WAIT"
	case FailFast:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// ParseStrategy parses a strategy name. Accepted values are WAIT, FAIL,
// FAIL_FAST and DROP, case-insensitively. An empty string parses as Wait.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "WAIT":
		return Wait, nil
	case "FAIL", "FAIL_FAST", "DROP":
		return FailFast, nil
	default:
		return Wait, fmt.Errorf("unknown back-pressure strategy %q", s)
	}
}

// DefaultWaitInterval is the pause between admission attempts under Wait.
const DefaultWaitInterval = 2 * time.Millisecond

// AttemptFunc makes one admission attempt. It returns nil on admission, a
// back-pressure error on rejection, or any other error to abort.
type AttemptFunc func(ctx context.Context) error

// Selector admits events according to a Strategy.
type Selector struct {
	flow     string
	strategy Strategy
	interval time.Duration

	attempts atomic.Int64
}

// NewSelector creates a selector for flow. A non-positive interval uses
// DefaultWaitInterval.
func NewSelector(flow string, strategy Strategy, interval time.Duration) *Selector {
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	return &Selector{flow: flow, strategy: strategy, interval: interval}
}

// Strategy returns the selector's strategy.
func (s *Selector) Strategy() Strategy {
	return s.strategy
}

// Attempts returns the number of admission attempts made so far.
func (s *Selector) Attempts() int64 {
	return s.attempts.Load()
}

// Admit runs try according to the strategy.
//
// Under FailFast try runs once. Under Wait it is retried every interval
// while it returns back-pressure errors; if ctx ends first Admit returns an
// EventsAccumulated error wrapping the context error.
func (s *Selector) Admit(ctx context.Context, try AttemptFunc) error {
	if s.strategy == FailFast {
		s.attempts.Add(1)
		return try(ctx)
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return Interrupted(s.flow, err)
		}

		s.attempts.Add(1)
		err := try(ctx)
		if err == nil || !IsBackPressure(err) {
			return err
		}
		if errors.Is(err, ErrEventsAccumulated) {
			return err
		}

		timer.Reset(s.interval)
		select {
		case <-ctx.Done():
			return Interrupted(s.flow, ctx.Err())
		case <-timer.C:
		}
	}
}
