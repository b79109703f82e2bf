package flowline

import (
	"context"
	"fmt"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// Processor is one stage of a pipeline.
//
// Process returns the event for the next stage. Returning a nil event with
// a nil error ends processing for this event without a failure. Processors
// may also implement the lifecycle capability interfaces; a chain cascades
// its lifecycle to every stage that does.
type Processor interface {
	Process(ctx context.Context, e *event.Event) (*event.Event, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, e *event.Event) (*event.Event, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	return f(ctx, e)
}

// Named is implemented by processors that report a name for logs, traces
// and errors.
type Named interface {
	Name() string
}

// NameOf returns p's name, or its type when p is not Named.
func NameOf(p Processor) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}

type namedFunc struct {
	name string
	fn   ProcessorFunc
}

func (n namedFunc) Name() string { return n.name }

func (n namedFunc) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	return n.fn(ctx, e)
}

// NamedFunc creates a named processor from a function.
func NamedFunc(name string, fn ProcessorFunc) Processor {
	return namedFunc{name: name, fn: fn}
}

// InterceptingProcessor is a stage that controls whether, and how, the rest
// of the chain runs. When built into a chain it is given the stages that
// follow it as next; it owns invoking them.
type InterceptingProcessor interface {
	Processor
	SetNext(next Processor)
}

// Intercepting is embedded by intercepting processors to hold and invoke
// the downstream stages.
//
//	type audit struct{ flowline.Intercepting }
//
//	func (a *audit) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
//	    out, err := a.ProcessNext(ctx, e)
//	    // ... inspect out and err ...
//	    return out, err
//	}
type Intercepting struct {
	next Processor
}

// SetNext implements InterceptingProcessor.
func (i *Intercepting) SetNext(next Processor) {
	i.next = next
}

// Next returns the downstream stages, or nil when the processor is last.
func (i *Intercepting) Next() Processor {
	return i.next
}

// ProcessNext runs the downstream stages. With nothing downstream it
// returns e unchanged.
func (i *Intercepting) ProcessNext(ctx context.Context, e *event.Event) (*event.Event, error) {
	if i.next == nil {
		return e, nil
	}
	return i.next.Process(ctx, e)
}

// StageInfo identifies the stage an Interceptor is wrapping.
type StageInfo struct {
	// Name is the processor name (see NameOf).
	Name string
	// Path is the stage's position, "<chain>/processors/<index>".
	Path string
}

// Interceptor is around-advice applied to every stage a chain invokes.
// It must call next to run the stage.
type Interceptor func(ctx context.Context, stage StageInfo, e *event.Event, next ProcessorFunc) (*event.Event, error)
