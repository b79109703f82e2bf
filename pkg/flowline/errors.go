package flowline

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// Sentinel errors for building and validating pipelines.
var (
	// ErrInitialisation matches every *InitialisationError.
	ErrInitialisation = errors.New("initialisation failed")

	// ErrInvalidConfig indicates a pipeline option failed validation.
	ErrInvalidConfig = errors.New("invalid pipeline configuration")

	// ErrEmptyChain indicates a chain was built with no processors and
	// AllowEmpty was not set.
	ErrEmptyChain = errors.New("processor chain has no processors")

	// ErrNilProcessor indicates a nil processor was added to a chain.
	ErrNilProcessor = errors.New("nil processor")
)

// Sentinel errors for processing.
var (
	// ErrNotProcessing indicates an event was dispatched to a pipeline that
	// is not started.
	ErrNotProcessing = errors.New("pipeline is not processing events")

	// ErrChainStopped indicates an event reached a stopped chain.
	ErrChainStopped = errors.New("processor chain is stopped")

	// ErrFlowDisposed completes events still in flight when their pipeline
	// is disposed.
	ErrFlowDisposed = errors.New("pipeline disposed before event completed")
)

// InitialisationError wraps a failure during pipeline initialisation.
type InitialisationError struct {
	// Flow is the pipeline being initialised.
	Flow string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *InitialisationError) Error() string {
	return fmt.Sprintf("initialise flow %s: %v", e.Flow, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *InitialisationError) Unwrap() error {
	return e.Err
}

// Is matches ErrInitialisation.
func (e *InitialisationError) Is(target error) bool {
	return target == ErrInitialisation
}

// MessagingError wraps an error raised by a processor while handling an
// event. A chain wraps a failure once; errors that are already
// *MessagingError pass through unchanged.
type MessagingError struct {
	// Processor names the failing stage.
	Processor string
	// Event is the event the stage was given.
	Event *event.Event
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *MessagingError) Error() string {
	return fmt.Sprintf("processor %s: %v", e.Processor, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *MessagingError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised while processing an event.
// It includes the stack trace for debugging.
type PanicError struct {
	// Flow is the pipeline whose chain panicked.
	Flow string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("flow %s panicked: %v", e.Flow, e.Value)
}

// LifecycleError records a component that failed while a pipeline was
// stopping or disposing.
type LifecycleError struct {
	// Flow is the pipeline being transitioned.
	Flow string
	// Component is the failing part ("source", "sink", "chain", ...).
	Component string
	// Op is the operation that failed ("stop", "dispose").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	return fmt.Sprintf("flow %s: %s %s: %v", e.Flow, e.Op, e.Component, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *LifecycleError) Unwrap() error {
	return e.Err
}
