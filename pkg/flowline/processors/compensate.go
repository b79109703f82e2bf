package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/flowline/pkg/flowline"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// Step is one action of a Compensating stage.
type Step struct {
	Name string

	// Do performs the action. Returning a nil event ends the stage without
	// compensation, like a filter.
	Do flowline.ProcessorFunc

	// Undo reverts Do. It receives the event Do returned.
	Undo func(ctx context.Context, e *event.Event) error

	// Timeout bounds Do. Zero means no limit beyond ctx.
	Timeout time.Duration

	// Optional steps may fail without triggering compensation.
	Optional bool
}

// CompensationError reports a failed step and any undo that failed while
// rolling back the steps before it.
type CompensationError struct {
	Stage string
	Step  string
	Err   error
	Undo  error
}

func (e *CompensationError) Error() string {
	if e.Undo != nil {
		return fmt.Sprintf("%s: step %s failed: %v (compensation failed: %v)", e.Stage, e.Step, e.Err, e.Undo)
	}
	return fmt.Sprintf("%s: step %s failed: %v", e.Stage, e.Step, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// CompensatingProcessor runs its steps in order, feeding each the event the
// previous one returned. When a required step fails, the completed steps
// are undone in reverse order and the stage fails with
// *CompensationError.
type CompensatingProcessor struct {
	name   string
	steps  []Step
	logger *slog.Logger
}

// Compensating creates a compensating stage.
func Compensating(name string, steps ...Step) *CompensatingProcessor {
	return &CompensatingProcessor{name: name, steps: steps, logger: slog.Default()}
}

// WithLogger sets the logger for step failures.
func (c *CompensatingProcessor) WithLogger(l *slog.Logger) *CompensatingProcessor {
	if l != nil {
		c.logger = l
	}
	return c
}

// Name implements flowline.Named.
func (c *CompensatingProcessor) Name() string { return c.name }

type completed struct {
	step *Step
	out  *event.Event
}

// Process implements flowline.Processor.
func (c *CompensatingProcessor) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	current := e
	done := make([]completed, 0, len(c.steps))

	for i := range c.steps {
		step := &c.steps[i]
		if err := ctx.Err(); err != nil {
			return nil, c.compensate(ctx, done, step.Name, err)
		}

		out, err := c.run(ctx, step, current)
		if err != nil {
			if step.Optional {
				c.logger.Debug("optional step failed, continuing",
					slog.String("stage", c.name),
					slog.String("step", step.Name),
					slog.String("error", err.Error()),
				)
				continue
			}
			c.logger.Warn("step failed, compensating",
				slog.String("stage", c.name),
				slog.String("step", step.Name),
				slog.Int("completed", len(done)),
				slog.String("error", err.Error()),
			)
			return nil, c.compensate(ctx, done, step.Name, err)
		}
		if out == nil {
			return nil, nil
		}
		done = append(done, completed{step: step, out: out})
		current = out
	}
	return current, nil
}

func (c *CompensatingProcessor) run(ctx context.Context, step *Step, e *event.Event) (*event.Event, error) {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}
	return step.Do(ctx, e)
}

// compensate undoes done in reverse. Undo runs even when ctx is cancelled.
func (c *CompensatingProcessor) compensate(ctx context.Context, done []completed, failed string, cause error) error {
	undoCtx := context.WithoutCancel(ctx)
	var undoErrs []error
	for i := len(done) - 1; i >= 0; i-- {
		d := done[i]
		if d.step.Undo == nil {
			continue
		}
		if err := d.step.Undo(undoCtx, d.out); err != nil {
			c.logger.Error("compensation failed",
				slog.String("stage", c.name),
				slog.String("step", d.step.Name),
				slog.String("error", err.Error()),
			)
			undoErrs = append(undoErrs, fmt.Errorf("%s: %w", d.step.Name, err))
		}
	}
	return &CompensationError{
		Stage: c.name,
		Step:  failed,
		Err:   cause,
		Undo:  errors.Join(undoErrs...),
	}
}
