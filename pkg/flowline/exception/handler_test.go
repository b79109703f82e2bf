package exception_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/exception"
)

var errBoom = errors.New("boom")

type recordingProcessor struct {
	seen    []*event.Event
	err     error
	started int
}

func (p *recordingProcessor) Process(_ context.Context, e *event.Event) (*event.Event, error) {
	p.seen = append(p.seen, e)
	if p.err != nil {
		return nil, p.err
	}
	return e.WithVariable("handled", true), nil
}

func (p *recordingProcessor) Start(context.Context) error {
	p.started++
	return nil
}

func TestPropagate(t *testing.T) {
	proc := &recordingProcessor{}
	h := exception.Propagate(exception.WithProcessor(proc))
	e := event.New("payload")

	result, err := h.HandleException(context.Background(), errBoom, e)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, errBoom)
	require.Len(t, proc.seen, 1)
	assert.ErrorIs(t, proc.seen[0].Err(), errBoom)
	assert.True(t, exception.AcceptsAll(h))
}

func TestPropagate_ProcessorFailure(t *testing.T) {
	procErr := errors.New("processor failed")
	h := exception.Propagate(exception.WithProcessor(&recordingProcessor{err: procErr}))

	_, err := h.HandleException(context.Background(), errBoom, event.New(nil))

	assert.ErrorIs(t, err, procErr)
}

func TestContinue(t *testing.T) {
	h := exception.Continue(exception.WithProcessor(&recordingProcessor{}))
	e := event.New("payload")

	result, err := h.HandleException(context.Background(), errBoom, e)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NoError(t, result.Err())
	v, ok := result.Variable("handled")
	assert.True(t, ok)
	assert.Equal(t, true, v)
	assert.Same(t, e.Context(), result.Context())
}

func TestContinue_NoProcessor(t *testing.T) {
	h := exception.Continue()

	result, err := h.HandleException(context.Background(), errBoom, event.New("p"))

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "p", result.Payload())
}

func TestContinue_AndPropagate(t *testing.T) {
	proc := &recordingProcessor{}
	h := exception.Continue(exception.WithProcessor(proc), exception.AndPropagate())

	_, err := h.HandleException(context.Background(), errBoom, event.New(nil))

	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, proc.seen, 1)
}

func TestWhenIs(t *testing.T) {
	h := exception.Continue(exception.WhenIs(errBoom))

	assert.False(t, exception.AcceptsAll(h))
	assert.True(t, h.Accepts(event.New(nil).WithError(errBoom)))
	assert.True(t, h.Accepts(event.New(nil).WithError(errors.Join(errBoom, errors.New("other")))))
	assert.False(t, h.Accepts(event.New(nil).WithError(errors.New("other"))))
	assert.False(t, h.Accepts(event.New(nil)))
}

func TestRouter(t *testing.T) {
	errOther := errors.New("other")
	specific := &recordingProcessor{}
	fallback := &recordingProcessor{}

	r := exception.Chain(
		exception.Continue(exception.WhenIs(errBoom), exception.WithProcessor(specific)),
		exception.Propagate(exception.WithProcessor(fallback)),
	)

	t.Run("first accepting handler wins", func(t *testing.T) {
		result, err := r.HandleException(context.Background(), errBoom, event.New(nil))
		require.NoError(t, err)
		assert.NotNil(t, result)
		assert.Len(t, specific.seen, 1)
		assert.Empty(t, fallback.seen)
	})

	t.Run("falls through to later handlers", func(t *testing.T) {
		_, err := r.HandleException(context.Background(), errOther, event.New(nil))
		assert.ErrorIs(t, err, errOther)
		assert.Len(t, fallback.seen, 1)
	})

	assert.True(t, r.AcceptsAll())
	assert.NoError(t, exception.Validate(r))
}

func TestRouter_NoneAccepts(t *testing.T) {
	r := exception.Chain(exception.Continue(exception.WhenIs(errBoom)))
	errOther := errors.New("other")

	_, err := r.HandleException(context.Background(), errOther, event.New(nil))

	assert.ErrorIs(t, err, errOther)
	assert.False(t, r.AcceptsAll())
	assert.ErrorIs(t, exception.Validate(r), exception.ErrNotExhaustive)
}

func TestRouter_PropagatesLifecycle(t *testing.T) {
	a, b := &recordingProcessor{}, &recordingProcessor{}
	r := exception.Chain(
		exception.Continue(exception.WhenIs(errBoom), exception.WithProcessor(a)),
		exception.Propagate(exception.WithProcessor(b)),
	)

	require.NoError(t, r.Initialise(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, 1, a.started)
	assert.Equal(t, 1, b.started)
	assert.NoError(t, r.Stop(context.Background()))
	assert.NoError(t, r.Dispose(context.Background()))
}

func TestValidate_Nil(t *testing.T) {
	assert.ErrorIs(t, exception.Validate(nil), exception.ErrNotExhaustive)
}
