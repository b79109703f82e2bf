// Package backpressure classifies why a pipeline refused an event and
// decides, per inbound event, whether admission should wait or fail fast.
package backpressure

import (
	"errors"
	"fmt"
	"strings"
)

// Reason is the closed set of causes for rejecting an event.
type Reason int

const (
	// MaxConcurrencyExceeded means the pipeline's in-flight ceiling was hit.
	MaxConcurrencyExceeded Reason = iota
	// RequiredSchedulerBusy means an execution resource (a worker pool)
	// is saturated.
	RequiredSchedulerBusy
	// RequiredSchedulerBusyWithFullBuffer means the scheduler is busy and
	// its accumulation buffer is full.
	RequiredSchedulerBusyWithFullBuffer
	// EventsAccumulated means admission was interrupted while waiting.
	EventsAccumulated
)

// String returns the reason code.
func (r Reason) String() string {
	switch r {
	case MaxConcurrencyExceeded:
		return "MAX_CONCURRENCY_EXCEEDED"
	case RequiredSchedulerBusy:
		return "REQUIRED_SCHEDULER_BUSY"
	case RequiredSchedulerBusyWithFullBuffer:
		return "REQUIRED_SCHEDULER_BUSY_WITH_FULL_BUFFER"
	case EventsAccumulated:
		return "EVENTS_ACCUMULATED"
	default:
		return "UNKNOWN"
	}
}

// Reasons lists every reason in declaration order.
func Reasons() []Reason {
	return []Reason{
		MaxConcurrencyExceeded,
		RequiredSchedulerBusy,
		RequiredSchedulerBusyWithFullBuffer,
		EventsAccumulated,
	}
}

// ErrBackPressure matches every back-pressure error.
var ErrBackPressure = errors.New("back-pressure")

// Per-reason sentinels. Every *Error matches exactly one of these.
var (
	ErrMaxConcurrencyExceeded      = errors.New("max concurrency exceeded")
	ErrSchedulerBusy               = errors.New("required scheduler busy")
	ErrSchedulerBusyWithFullBuffer = errors.New("required scheduler busy with full buffer")
	ErrEventsAccumulated           = errors.New("events accumulated")
)

func (r Reason) sentinel() error {
	switch r {
	case MaxConcurrencyExceeded:
		return ErrMaxConcurrencyExceeded
	case RequiredSchedulerBusy:
		return ErrSchedulerBusy
	case RequiredSchedulerBusyWithFullBuffer:
		return ErrSchedulerBusyWithFullBuffer
	default:
		return ErrEventsAccumulated
	}
}

// Error is raised when a pipeline refuses an event. It is recoverable by
// design: the source decides whether to redeliver, discard or fail.
type Error struct {
	// Flow is the name of the rejecting pipeline.
	Flow string
	// Reason classifies the rejection.
	Reason Reason
	// Cause is set when admission was interrupted.
	Cause error
}

// New creates a back-pressure error for flow.
func New(flow string, reason Reason) *Error {
	return &Error{Flow: flow, Reason: reason}
}

// Interrupted creates an EventsAccumulated error wrapping cause.
func Interrupted(flow string, cause error) *Error {
	return &Error{Flow: flow, Reason: EventsAccumulated, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("flow '%s' is unable to accept new events: %s", e.Flow, strings.ToLower(e.Reason.sentinel().Error()))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches ErrBackPressure and the sentinel for the error's reason.
func (e *Error) Is(target error) bool {
	return target == ErrBackPressure || target == e.Reason.sentinel()
}

// ReasonOf extracts the back-pressure reason from err.
func ReasonOf(err error) (Reason, bool) {
	var bp *Error
	if errors.As(err, &bp) {
		return bp.Reason, true
	}
	return 0, false
}

// IsBackPressure reports whether err is a back-pressure rejection.
func IsBackPressure(err error) bool {
	return errors.Is(err, ErrBackPressure)
}
