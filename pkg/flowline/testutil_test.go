package flowline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/notification"
)

// Shared fixtures for the pipeline and chain tests.

var errBoom = errors.New("boom")

// discardLogger keeps lifecycle logging out of test output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// appendTag appends tag to a string payload.
func appendTag(tag string) Processor {
	return NamedFunc("tag-"+tag, func(_ context.Context, e *event.Event) (*event.Event, error) {
		return e.WithPayload(e.Payload().(string) + tag), nil
	})
}

// failing always returns err.
func failing(err error) Processor {
	return NamedFunc("failing", func(context.Context, *event.Event) (*event.Event, error) {
		return nil, err
	})
}

// filtering drops every event.
func filtering() Processor {
	return NamedFunc("filter", func(context.Context, *event.Event) (*event.Event, error) {
		return nil, nil
	})
}

// wrapping is an intercepting processor that brackets downstream stages
// with "before<id>" and "after<id>".
type wrapping struct {
	Intercepting
	id string
}

func (w *wrapping) Name() string { return "wrap-" + w.id }

func (w *wrapping) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	e = e.WithPayload(e.Payload().(string) + "before" + w.id)
	out, err := w.ProcessNext(ctx, e)
	if err != nil || out == nil {
		return out, err
	}
	return out.WithPayload(out.Payload().(string) + "after" + w.id), nil
}

// gate blocks every event until released.
type gate struct {
	entered chan string
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{
		entered: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (g *gate) Name() string { return "gate" }

func (g *gate) Process(_ context.Context, e *event.Event) (*event.Event, error) {
	g.entered <- e.ID()
	<-g.release
	return e, nil
}

func (g *gate) open() {
	g.once.Do(func() { close(g.release) })
}

// journal is an ordered, concurrency-safe record of calls.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) index(s string) int {
	for i, e := range j.all() {
		if e == s {
			return i
		}
	}
	return -1
}

// component is a pass-through processor that journals its lifecycle.
// Errors set in fail are returned from the matching phase.
type component struct {
	name string
	log  *journal
	fail map[string]error
}

func newComponent(name string, log *journal) *component {
	return &component{name: name, log: log, fail: map[string]error{}}
}

func (c *component) Name() string { return c.name }

func (c *component) Process(_ context.Context, e *event.Event) (*event.Event, error) {
	return e, nil
}

func (c *component) phase(p string) error {
	c.log.add(c.name + ":" + p)
	return c.fail[p]
}

func (c *component) Initialise(context.Context) error { return c.phase("initialise") }
func (c *component) Start(context.Context) error      { return c.phase("start") }
func (c *component) Stop(context.Context) error       { return c.phase("stop") }
func (c *component) Dispose(context.Context) error    { return c.phase("dispose") }

// fakeSource journals its lifecycle and dispatches on demand.
type fakeSource struct {
	*component
	strategy backpressure.Strategy

	mu       sync.Mutex
	listener Listener
}

func newFakeSource(log *journal, strategy backpressure.Strategy) *fakeSource {
	return &fakeSource{component: newComponent("source", log), strategy: strategy}
}

func (s *fakeSource) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

func (s *fakeSource) BackPressureStrategy() backpressure.Strategy {
	return s.strategy
}

func (s *fakeSource) emit(ctx context.Context, e *event.Event) error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	return l.Dispatch(ctx, e)
}

// recordingDispatcher collects notifications.
type recordingDispatcher struct {
	mu    sync.Mutex
	items []notification.Notification
}

func (d *recordingDispatcher) Dispatch(n notification.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, n)
}

func (d *recordingDispatcher) actions(filter func(notification.Notification) bool) []notification.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []notification.Action
	for _, n := range d.items {
		if filter == nil || filter(n) {
			out = append(out, n.Action)
		}
	}
	return out
}

func (d *recordingDispatcher) forEvent(id string) []notification.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []notification.Notification
	for _, n := range d.items {
		if n.EventID == id {
			out = append(out, n)
		}
	}
	return out
}

// startedPipeline builds, initialises and starts a pipeline, disposing it
// when the test ends.
func startedPipeline(t testingT, name string, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	p := NewPipeline(name, opts...)
	ctx := context.Background()
	if err := p.Initialise(ctx); err != nil {
		t.Fatalf("initialise: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = p.Dispose(context.Background()) })
	return p
}

type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}
