// Package event defines the unit of work that travels through a pipeline.
//
// An Event carries a payload, named variables and metadata. Every event
// admitted into a pipeline is bound to a Context that owns its completion
// channel and its flow call stack. Derived events (WithPayload, WithVariable,
// WithError) share the Context of the event they were derived from, so the
// completion of any derived event completes the original.
package event

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Metadata contains the identity fields of an event.
type Metadata struct {
	EventID       string    `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Source        string    `json:"source,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Event is the unit of data and metadata traveling through a pipeline.
// Events are immutable once created; any modification returns a new event.
type Event struct {
	meta    Metadata
	payload any
	vars    map[string]any
	err     error
	ctx     *Context
}

// Option configures a new event.
type Option func(*Event)

// WithCorrelationID sets the correlation id. Defaults to the event id.
func WithCorrelationID(id string) Option {
	return func(e *Event) {
		if id != "" {
			e.meta.CorrelationID = id
		}
	}
}

// WithSource records the name of the source that produced the event.
func WithSource(name string) Option {
	return func(e *Event) {
		e.meta.Source = name
	}
}

// WithVariables seeds the event's variables.
func WithVariables(vars map[string]any) Option {
	return func(e *Event) {
		e.vars = maps.Clone(vars)
	}
}

// WithContext binds the event to an existing execution context instead of
// creating a new one.
func WithContext(c *Context) Option {
	return func(e *Event) {
		e.ctx = c
	}
}

// New creates an event carrying payload, bound to a fresh Context.
//
// Example:
//
//	e := event.New("hello", event.WithCorrelationID("order-42"))
func New(payload any, opts ...Option) *Event {
	id := uuid.New().String()
	e := &Event{
		meta: Metadata{
			EventID:       id,
			CorrelationID: id,
			Timestamp:     time.Now().UTC(),
		},
		payload: payload,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ctx == nil {
		e.ctx = NewContext(e.meta.CorrelationID)
	}
	return e
}

// ID returns the unique event identifier.
func (e *Event) ID() string {
	return e.meta.EventID
}

// CorrelationID returns the id shared by all notifications for this event.
func (e *Event) CorrelationID() string {
	return e.meta.CorrelationID
}

// Source returns the name of the source that produced the event, if any.
func (e *Event) Source() string {
	return e.meta.Source
}

// Timestamp returns when the event was created.
func (e *Event) Timestamp() time.Time {
	return e.meta.Timestamp
}

// Metadata returns a copy of the event metadata.
func (e *Event) Metadata() Metadata {
	return e.meta
}

// Payload returns the event payload.
func (e *Event) Payload() any {
	return e.payload
}

// Variable returns the named variable and whether it is set.
func (e *Event) Variable(name string) (any, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Variables returns a copy of all variables.
func (e *Event) Variables() map[string]any {
	return maps.Clone(e.vars)
}

// Err returns the error attached to the event while it is being handled by
// an exception handler, or nil.
func (e *Event) Err() error {
	return e.err
}

// Context returns the execution context the event is bound to.
func (e *Event) Context() *Context {
	return e.ctx
}

// WithPayload returns a copy of the event carrying payload.
func (e *Event) WithPayload(payload any) *Event {
	c := e.clone()
	c.payload = payload
	return c
}

// WithVariable returns a copy of the event with the variable set.
func (e *Event) WithVariable(name string, value any) *Event {
	c := e.clone()
	c.vars = maps.Clone(e.vars)
	if c.vars == nil {
		c.vars = make(map[string]any, 1)
	}
	c.vars[name] = value
	return c
}

// WithoutVariable returns a copy of the event with the variable removed.
func (e *Event) WithoutVariable(name string) *Event {
	if _, ok := e.vars[name]; !ok {
		return e
	}
	c := e.clone()
	c.vars = maps.Clone(e.vars)
	delete(c.vars, name)
	return c
}

// WithError returns a copy of the event with err attached.
// Passing nil clears the error.
func (e *Event) WithError(err error) *Event {
	c := e.clone()
	c.err = err
	return c
}

func (e *Event) clone() *Event {
	c := *e
	return &c
}
