package processors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/flowline/pkg/flowline"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

type stage struct {
	name string
	fn   flowline.ProcessorFunc
}

func (s *stage) Name() string { return s.name }

func (s *stage) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	return s.fn(ctx, e)
}

// Transform replaces a payload of type T with fn's result. Events carrying
// a payload of another type fail with ErrPayloadType.
func Transform[T, R any](name string, fn func(T) R) flowline.Processor {
	return &stage{name: name, fn: func(_ context.Context, e *event.Event) (*event.Event, error) {
		in, ok := e.Payload().(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants %T, got %T", ErrPayloadType, name, in, e.Payload())
		}
		return e.WithPayload(fn(in)), nil
	}}
}

// TransformErr is Transform for functions that can fail.
func TransformErr[T, R any](name string, fn func(context.Context, T) (R, error)) flowline.Processor {
	return &stage{name: name, fn: func(ctx context.Context, e *event.Event) (*event.Event, error) {
		in, ok := e.Payload().(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants %T, got %T", ErrPayloadType, name, in, e.Payload())
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return e.WithPayload(out), nil
	}}
}

// SetVariable sets a variable on every event.
func SetVariable(name string, value any) flowline.Processor {
	return &stage{name: "set-variable-" + name, fn: func(_ context.Context, e *event.Event) (*event.Event, error) {
		return e.WithVariable(name, value), nil
	}}
}

// RemoveVariable removes a variable from every event.
func RemoveVariable(name string) flowline.Processor {
	return &stage{name: "remove-variable-" + name, fn: func(_ context.Context, e *event.Event) (*event.Event, error) {
		return e.WithoutVariable(name), nil
	}}
}

// Log logs each event at level and passes it on unchanged.
func Log(logger *slog.Logger, level slog.Level) flowline.Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &stage{name: "log", fn: func(ctx context.Context, e *event.Event) (*event.Event, error) {
		attrs := []slog.Attr{
			slog.String("event_id", e.ID()),
			slog.String("correlation_id", e.CorrelationID()),
			slog.Any("payload", e.Payload()),
		}
		if f, ok := e.Context().FlowStack().Peek(); ok {
			attrs = append(attrs, slog.String("flow", f.Flow))
		}
		logger.LogAttrs(ctx, level, "event", attrs...)
		return e, nil
	}}
}
