package processors

import (
	"context"
	"errors"
	"reflect"

	"github.com/randalmurphal/flowline/pkg/flowline"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// ErrPayloadType indicates a stage received a payload of the wrong type.
var ErrPayloadType = errors.New("unexpected payload type")

// ErrRejected is returned by a Filter built with RejectWithError.
var ErrRejected = errors.New("event rejected by filter")

// Predicate decides whether an event passes a Filter.
type Predicate func(e *event.Event) bool

// VariableEquals accepts events whose variable name equals value.
func VariableEquals(name string, value any) Predicate {
	return func(e *event.Event) bool {
		v, ok := e.Variable(name)
		return ok && reflect.DeepEqual(v, value)
	}
}

// HasVariable accepts events that carry variable name.
func HasVariable(name string) Predicate {
	return func(e *event.Event) bool {
		_, ok := e.Variable(name)
		return ok
	}
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return func(e *event.Event) bool { return !p(e) }
}

// FilterProcessor runs the rest of the chain only for accepted events.
// Rejected events go to the unaccepted processor when one is set, fail
// with ErrRejected when configured to, or are dropped.
type FilterProcessor struct {
	flowline.Intercepting
	name       string
	accept     Predicate
	unaccepted flowline.Processor
	fail       bool
}

// FilterOption configures a FilterProcessor.
type FilterOption func(*FilterProcessor)

// OnUnaccepted sends rejected events to p.
func OnUnaccepted(p flowline.Processor) FilterOption {
	return func(f *FilterProcessor) { f.unaccepted = p }
}

// RejectWithError fails rejected events with ErrRejected.
func RejectWithError() FilterOption {
	return func(f *FilterProcessor) { f.fail = true }
}

// Filter creates a filtering stage.
func Filter(name string, accept Predicate, opts ...FilterOption) *FilterProcessor {
	f := &FilterProcessor{name: name, accept: accept}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements flowline.Named.
func (f *FilterProcessor) Name() string { return f.name }

// Process implements flowline.Processor.
func (f *FilterProcessor) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	if f.accept(e) {
		return f.ProcessNext(ctx, e)
	}
	switch {
	case f.unaccepted != nil:
		return f.unaccepted.Process(ctx, e)
	case f.fail:
		return nil, ErrRejected
	default:
		return nil, nil
	}
}
