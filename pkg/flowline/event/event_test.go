package event_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

func TestNew(t *testing.T) {
	e := event.New("hello")

	assert.NotEmpty(t, e.ID())
	assert.Equal(t, e.ID(), e.CorrelationID(), "correlation id defaults to event id")
	assert.Equal(t, "hello", e.Payload())
	assert.False(t, e.Timestamp().IsZero())
	require.NotNil(t, e.Context())
	assert.Equal(t, e.CorrelationID(), e.Context().ID())
}

func TestNew_Options(t *testing.T) {
	e := event.New(1,
		event.WithCorrelationID("order-42"),
		event.WithSource("http"),
		event.WithVariables(map[string]any{"a": 1}),
	)

	assert.Equal(t, "order-42", e.CorrelationID())
	assert.Equal(t, "http", e.Source())
	v, ok := e.Variable("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestEvent_DerivedEventsShareContext(t *testing.T) {
	e := event.New("a")

	derived := e.WithPayload("b").WithVariable("k", "v").WithError(errors.New("x"))

	assert.Equal(t, "a", e.Payload(), "original is unchanged")
	assert.Equal(t, "b", derived.Payload())
	assert.Same(t, e.Context(), derived.Context())
	assert.Equal(t, e.ID(), derived.ID())

	_, ok := e.Variable("k")
	assert.False(t, ok, "variables are copy-on-write")
	assert.NoError(t, e.Err())
	assert.Error(t, derived.Err())
	assert.NoError(t, derived.WithError(nil).Err())
}

func TestEvent_WithoutVariable(t *testing.T) {
	e := event.New(nil).WithVariable("a", 1).WithVariable("b", 2)

	removed := e.WithoutVariable("a")

	assert.Len(t, e.Variables(), 2)
	assert.Equal(t, map[string]any{"b": 2}, removed.Variables())
	assert.Same(t, removed, removed.WithoutVariable("missing"))
}

func TestContext_CompletesExactlyOnce(t *testing.T) {
	e := event.New("a")
	var calls atomic.Int32
	e.Context().OnComplete(func(result *event.Event, err error) {
		calls.Add(1)
	})

	assert.True(t, e.Context().Success(e))
	assert.False(t, e.Context().Error(errors.New("late")))
	assert.False(t, e.Context().Success(e))

	assert.Equal(t, int32(1), calls.Load())
	result, err := e.Context().Result()
	assert.NoError(t, err)
	assert.Same(t, e, result)
	assert.True(t, e.Context().IsComplete())

	select {
	case <-e.Context().Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestContext_OnCompleteAfterCompletion(t *testing.T) {
	e := event.New("a")
	boom := errors.New("boom")
	e.Context().Error(boom)

	var got error
	e.Context().OnComplete(func(_ *event.Event, err error) {
		got = err
	})

	assert.ErrorIs(t, got, boom)
}

func TestContext_ConcurrentCompletion(t *testing.T) {
	e := event.New("a")
	var calls atomic.Int32
	e.Context().OnComplete(func(*event.Event, error) { calls.Add(1) })

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.Context().Success(e) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), calls.Load())
}

func TestFlowCallStack(t *testing.T) {
	s := event.New(nil).Context().FlowStack()

	_, ok := s.Pop()
	assert.False(t, ok)
	s.SetProcessor("ignored")

	s.Push("outer")
	s.Push("inner")
	s.SetProcessor("inner/processors/0")

	top, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, "inner", top.Flow)
	assert.Equal(t, "inner/processors/0", top.Processor)
	assert.Equal(t, 2, s.Depth())

	frames := s.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "outer", frames[0].Flow)

	f, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, "inner", f.Flow)
	assert.Equal(t, 1, s.Depth())
}
