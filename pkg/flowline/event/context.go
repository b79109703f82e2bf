package event

import (
	"slices"
	"sync"
	"time"
)

// CompletionFunc is called once when an event's processing completes.
// Exactly one of result and err is meaningful; result may be nil when the
// event was filtered out by a processor.
type CompletionFunc func(result *Event, err error)

// Context is the execution context of one admitted event.
//
// It owns the completion channel, which is completed exactly once with
// either a result or an error, and the flow call stack.
type Context struct {
	id      string
	created time.Time

	mu        sync.Mutex
	completed bool
	result    *Event
	err       error
	callbacks []CompletionFunc
	done      chan struct{}

	stack *FlowCallStack
}

// NewContext creates an execution context for the given correlation id.
func NewContext(correlationID string) *Context {
	return &Context{
		id:      correlationID,
		created: time.Now(),
		done:    make(chan struct{}),
		stack:   &FlowCallStack{},
	}
}

// ID returns the correlation id this context was created for.
func (c *Context) ID() string {
	return c.id
}

// Created returns when the context was created.
func (c *Context) Created() time.Time {
	return c.created
}

// Success completes the context with result.
// Returns false if the context was already complete.
func (c *Context) Success(result *Event) bool {
	return c.complete(result, nil)
}

// Error completes the context with err.
// Returns false if the context was already complete.
func (c *Context) Error(err error) bool {
	return c.complete(nil, err)
}

func (c *Context) complete(result *Event, err error) bool {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return false
	}
	c.completed = true
	c.result = result
	c.err = err
	callbacks := c.callbacks
	c.callbacks = nil
	close(c.done)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(result, err)
	}
	return true
}

// OnComplete registers fn to run when the context completes.
// If the context is already complete fn runs immediately on the caller's
// goroutine.
func (c *Context) OnComplete(fn CompletionFunc) {
	c.mu.Lock()
	if !c.completed {
		c.callbacks = append(c.callbacks, fn)
		c.mu.Unlock()
		return
	}
	result, err := c.result, c.err
	c.mu.Unlock()
	fn(result, err)
}

// Done returns a channel closed when the context completes.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// IsComplete reports whether the context has completed.
func (c *Context) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// Result returns the completion outcome. Both values are nil until the
// context completes.
func (c *Context) Result() (*Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.err
}

// FlowStack returns the flow call stack of this context.
func (c *Context) FlowStack() *FlowCallStack {
	return c.stack
}

// Frame is one entry of the flow call stack.
type Frame struct {
	Flow      string
	Processor string
	Entered   time.Time
}

// FlowCallStack records which flows an event is executing in, innermost
// last. It is safe for concurrent use.
type FlowCallStack struct {
	mu     sync.Mutex
	frames []Frame
}

// Push enters a flow.
func (s *FlowCallStack) Push(flow string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, Frame{Flow: flow, Entered: time.Now()})
}

// Pop leaves the innermost flow. The boolean is false if the stack was empty.
func (s *FlowCallStack) Pop() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f, true
}

// Peek returns the innermost frame without removing it.
func (s *FlowCallStack) Peek() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// SetProcessor records the processor currently executing in the innermost
// flow. It is a no-op on an empty stack.
func (s *FlowCallStack) SetProcessor(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return
	}
	s.frames[len(s.frames)-1].Processor = path
}

// Depth returns the number of frames.
func (s *FlowCallStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Frames returns a copy of the stack, outermost first.
func (s *FlowCallStack) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.frames)
}
