package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
)

// FiredAtVariable is set on every event a Cron source emits to the time
// the schedule fired.
const FiredAtVariable = "flowline.cron.fired_at"

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a standard five-field cron expression, a six-field
// expression with leading seconds, or a descriptor such as "@every 5m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

// Cron emits an event carrying a fixed payload each time its schedule
// fires. Ticks that find the pipeline saturated are dropped by default.
type Cron struct {
	base
	schedule cron.Schedule
	payload  any

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewCron creates a scheduled source from a cron expression.
func NewCron(name, spec string, payload any, opts ...Option) (*Cron, error) {
	s, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	return NewCronSchedule(name, s, payload, opts...), nil
}

// NewCronSchedule creates a scheduled source from a parsed schedule.
func NewCronSchedule(name string, schedule cron.Schedule, payload any, opts ...Option) *Cron {
	c := &Cron{schedule: schedule, payload: payload}
	c.init(name, backpressure.FailFast, opts)
	return c
}

// Start begins firing on the schedule.
func (c *Cron) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.cron = cron.New(cron.WithParser(parser))
	c.cron.Schedule(c.schedule, cron.FuncJob(func() { c.fire(ctx) }))
	c.running.Store(true)
	c.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running tick to finish, or for
// ctx to end.
func (c *Cron) Stop(ctx context.Context) error {
	c.mu.Lock()
	sched, cancel := c.cron, c.cancel
	c.cron, c.cancel = nil, nil
	c.mu.Unlock()
	if sched == nil {
		return nil
	}

	c.running.Store(false)
	cancel()
	select {
	case <-sched.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next time the schedule fires after t.
func (c *Cron) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

func (c *Cron) fire(ctx context.Context) {
	e := c.newEvent(c.payload, nil).WithVariable(FiredAtVariable, time.Now())
	if err := c.dispatch(ctx, e); err != nil {
		c.logger.Warn("scheduled event not admitted", slog.String("error", err.Error()))
	}
}
