package source

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowline/pkg/flowline"
	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/config"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector is a listener that records every dispatched event.
type collector struct {
	mu     sync.Mutex
	events []*event.Event
	err    error
}

func (c *collector) Dispatch(_ context.Context, e *event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, e)
	return nil
}

func (c *collector) payloads() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.events))
	for i, e := range c.events {
		out[i] = e.Payload()
	}
	return out
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestTriggerable(t *testing.T) {
	ctx := context.Background()
	var c collector
	trig := NewTriggerable("api", WithLogger(discard()))
	trig.SetListener(&c)

	_, err := trig.Trigger(ctx, "early")
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, trig.Start(ctx))
	e, err := trig.Trigger(ctx, "hello", event.WithCorrelationID("c-1"))
	require.NoError(t, err)
	assert.Equal(t, "api", e.Source())
	assert.Equal(t, "c-1", e.CorrelationID())
	assert.Equal(t, []any{"hello"}, c.payloads())

	require.NoError(t, trig.Stop(ctx))
	assert.False(t, trig.IsRunning())
	_, err = trig.Trigger(ctx, "late")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestTriggerable_NoListener(t *testing.T) {
	trig := NewTriggerable("api")
	require.NoError(t, trig.Start(context.Background()))
	_, err := trig.Trigger(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoListener)
}

func TestBackPressureDefaults(t *testing.T) {
	assert.Equal(t, backpressure.Wait, NewTriggerable("t").BackPressureStrategy())
	assert.Equal(t, backpressure.Wait, NewChannel("c", make(chan int)).BackPressureStrategy())

	c, err := NewCron("cron", "@hourly", nil)
	require.NoError(t, err)
	assert.Equal(t, backpressure.FailFast, c.BackPressureStrategy())

	assert.Equal(t, backpressure.FailFast,
		NewTriggerable("t", WithBackPressure(backpressure.FailFast)).BackPressureStrategy())
}

func TestEventOptions(t *testing.T) {
	var c collector
	trig := NewTriggerable("api", WithEventOptions(event.WithVariables(map[string]any{"tenant": "a"})))
	trig.SetListener(&c)
	require.NoError(t, trig.Start(context.Background()))

	e, err := trig.Trigger(context.Background(), "x")
	require.NoError(t, err)
	v, ok := e.Variable("tenant")
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestChannel(t *testing.T) {
	ctx := context.Background()
	in := make(chan string)
	var c collector
	src := NewChannel("feed", in, WithLogger(discard()))
	src.SetListener(&c)

	require.NoError(t, src.Start(ctx))
	require.NoError(t, src.Start(ctx), "second start is a no-op")
	in <- "a"
	in <- "b"
	assert.Eventually(t, func() bool { return c.len() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []any{"a", "b"}, c.payloads())

	require.NoError(t, src.Stop(ctx))
	assert.False(t, src.IsRunning())

	// Restart picks up where it left off.
	require.NoError(t, src.Start(ctx))
	in <- "c"
	assert.Eventually(t, func() bool { return c.len() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, src.Stop(ctx))
}

func TestChannel_ClosedInput(t *testing.T) {
	in := make(chan int, 2)
	in <- 1
	in <- 2
	close(in)

	var c collector
	src := NewChannel("feed", in, WithLogger(discard()))
	src.SetListener(&c)
	require.NoError(t, src.Start(context.Background()))

	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not exit after input closed")
	}
	assert.Equal(t, []any{1, 2}, c.payloads())
	assert.False(t, src.IsRunning())
	require.NoError(t, src.Stop(context.Background()))
}

func TestChannel_RejectionsDoNotStopReader(t *testing.T) {
	in := make(chan int)
	var c collector
	rejectOdd := flowline.ListenerFunc(func(ctx context.Context, e *event.Event) error {
		if e.Payload().(int)%2 == 1 {
			return backpressure.New("p", backpressure.MaxConcurrencyExceeded)
		}
		return c.Dispatch(ctx, e)
	})
	src := NewChannel("feed", in, WithLogger(discard()))
	src.SetListener(rejectOdd)
	require.NoError(t, src.Start(context.Background()))
	t.Cleanup(func() { _ = src.Stop(context.Background()) })

	for i := 1; i <= 4; i++ {
		in <- i
	}
	assert.Eventually(t, func() bool { return c.len() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []any{2, 4}, c.payloads())
}

type every time.Duration

func (d every) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

func TestCron_Fires(t *testing.T) {
	ctx := context.Background()
	var c collector
	src := NewCronSchedule("tick", every(5*time.Millisecond), "ping", WithLogger(discard()))
	src.SetListener(&c)

	require.NoError(t, src.Start(ctx))
	assert.Eventually(t, func() bool { return c.len() >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, src.Stop(ctx))

	c.mu.Lock()
	first := c.events[0]
	c.mu.Unlock()
	assert.Equal(t, "ping", first.Payload())
	assert.Equal(t, "tick", first.Source())
	_, ok := first.Variable(FiredAtVariable)
	assert.True(t, ok)

	stopped := c.len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, c.len(), "no ticks after stop")
}

func TestParseSchedule(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		spec string
		want time.Time
	}{
		{spec: "*/5 * * * *", want: base.Add(5 * time.Minute)},
		{spec: "30 * * * * *", want: base.Add(30 * time.Second)},
		{spec: "@hourly", want: base.Add(time.Hour)},
		{spec: "@every 90s", want: base.Add(90 * time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := ParseSchedule(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Next(base))
		})
	}

	_, err := ParseSchedule("every tuesday")
	assert.Error(t, err)
}

func TestWithPipeline(t *testing.T) {
	ctx := context.Background()
	trig := NewTriggerable("api")
	upper := flowline.NamedFunc("upper", func(_ context.Context, e *event.Event) (*event.Event, error) {
		return e.WithPayload(strings.ToUpper(e.Payload().(string))), nil
	})

	p := flowline.NewPipeline("greetings",
		flowline.WithSource(trig),
		flowline.WithProcessors(upper),
		flowline.WithLogger(discard()),
	)
	require.NoError(t, p.Initialise(ctx))
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Dispose(ctx) })
	assert.True(t, trig.IsRunning())

	out, err := trig.TriggerAndWait(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out.Payload())

	require.NoError(t, p.Stop(ctx))
	assert.False(t, trig.IsRunning())
}

func TestBuild(t *testing.T) {
	r := Builtins()

	s, err := Build(r, &config.ComponentDef{
		Type:   "trigger",
		Name:   "api",
		Config: config.New(map[string]any{"back_pressure": "fail"}),
	}, Env{Logger: discard()})
	require.NoError(t, err)
	trig, ok := s.(*Triggerable)
	require.True(t, ok)
	assert.Equal(t, "api", trig.Name())
	assert.Equal(t, backpressure.FailFast, trig.BackPressureStrategy())

	s, err = Build(r, &config.ComponentDef{
		Type:   "cron",
		Config: config.New(map[string]any{"schedule": "@every 1m", "payload": "tick"}),
	}, Env{})
	require.NoError(t, err)
	cr, ok := s.(*Cron)
	require.True(t, ok)
	assert.Equal(t, "cron", cr.Name())

	for name, def := range map[string]*config.ComponentDef{
		"unknown":      {Type: "kafka"},
		"no schedule":  {Type: "cron"},
		"bad schedule": {Type: "cron", Config: config.New(map[string]any{"schedule": "never"})},
		"bad strategy": {Type: "trigger", Config: config.New(map[string]any{"back_pressure": "maybe"})},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Build(r, def, Env{})
			assert.Error(t, err)
		})
	}
}
