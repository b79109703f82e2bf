package processors

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/flowline/pkg/flowline"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/expr"
	"github.com/randalmurphal/flowline/pkg/flowline/template"
)

// Names every condition and template can use besides event variables.
// They shadow variables of the same name.
const (
	FieldPayload       = "payload"
	FieldID            = "id"
	FieldCorrelationID = "correlation_id"
	FieldSource        = "source"
)

// lookup resolves a field name against e. A dotted name reaches into a
// map payload (payload.customer.id) or a map variable. Empty metadata
// strings count as missing.
func lookup(e *event.Event) func(string) (any, bool) {
	return func(name string) (any, bool) {
		head, rest, nested := strings.Cut(name, ".")
		var root any
		switch head {
		case FieldPayload:
			root = e.Payload()
		case FieldID, FieldCorrelationID, FieldSource:
			s := metadata(e, head)
			if s == "" {
				return nil, false
			}
			root = s
		default:
			if v, ok := e.Variable(name); ok {
				return v, true
			}
			v, ok := e.Variable(head)
			if !ok {
				return nil, false
			}
			root = v
		}
		if !nested {
			return root, true
		}
		m, ok := root.(map[string]any)
		if !ok {
			return nil, false
		}
		return expr.Lookup(m, rest)
	}
}

// When accepts events for which cond holds.
func When(cond *expr.Condition) Predicate {
	return func(e *event.Event) bool {
		return cond.Eval(lookup(e))
	}
}

// Render replaces the payload with t rendered against the event.
func Render(name string, t *template.Template) flowline.Processor {
	return &stage{name: name, fn: func(_ context.Context, e *event.Event) (*event.Event, error) {
		s, err := t.Render(lookup(e))
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		return e.WithPayload(s), nil
	}}
}

// SetVariableFrom sets variable name to t rendered against each event.
func SetVariableFrom(name string, t *template.Template) flowline.Processor {
	return &stage{name: "set-variable-" + name, fn: func(_ context.Context, e *event.Event) (*event.Event, error) {
		s, err := t.Render(lookup(e))
		if err != nil {
			return nil, fmt.Errorf("set variable %s: %w", name, err)
		}
		return e.WithVariable(name, s), nil
	}}
}

func metadata(e *event.Event, field string) string {
	switch field {
	case FieldID:
		return e.ID()
	case FieldCorrelationID:
		return e.CorrelationID()
	}
	return e.Source()
}
