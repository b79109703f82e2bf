package exception_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/exception"
)

func TestInMemoryDLQ(t *testing.T) {
	ctx := context.Background()
	var enqueued int
	dlq := exception.NewInMemoryDLQ(exception.DLQConfig{
		MaxSize:   2,
		OnEnqueue: func(*exception.FailedEvent) { enqueued++ },
	})

	first := event.New("a", event.WithVariables(map[string]any{"k": 1}))
	require.NoError(t, dlq.Enqueue(ctx, exception.NewFailedEvent("orders", first, errBoom)))
	require.NoError(t, dlq.Enqueue(ctx, exception.NewFailedEvent("orders", event.New("b"), errBoom)))

	err := dlq.Enqueue(ctx, exception.NewFailedEvent("orders", event.New("c"), errBoom))
	assert.ErrorIs(t, err, exception.ErrDLQFull)
	assert.Equal(t, 2, dlq.Len())
	assert.Equal(t, 2, enqueued)

	listed := dlq.List()
	require.Len(t, listed, 2)
	assert.Equal(t, first.ID(), listed[0].EventID)
	assert.Equal(t, "boom", listed[0].ErrorMessage)
	assert.Equal(t, "orders", listed[0].Flow)
	assert.Equal(t, 1, listed[0].AttemptCount)

	got, err := dlq.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Payload)
	assert.Equal(t, 1, dlq.Len())

	stats := dlq.Stats()
	assert.Equal(t, int64(2), stats.Enqueued)
	assert.Equal(t, int64(1), stats.Dequeued)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestFailedEvent_Event(t *testing.T) {
	orig := event.New("p", event.WithCorrelationID("corr-1"), event.WithVariables(map[string]any{"k": "v"}))
	failed := exception.NewFailedEvent("f", orig, errBoom)

	redelivered := failed.Event()

	assert.NotEqual(t, orig.ID(), redelivered.ID())
	assert.Equal(t, "corr-1", redelivered.CorrelationID())
	v, ok := redelivered.Variable("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.NotSame(t, orig.Context(), redelivered.Context())
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	dlq := exception.NewInMemoryDLQ(exception.DefaultDLQConfig)
	require.NoError(t, dlq.Enqueue(ctx, exception.NewFailedEvent("f", event.New("ok"), errBoom)))
	require.NoError(t, dlq.Enqueue(ctx, exception.NewFailedEvent("f", event.New("bad"), errBoom)))

	replayErr := errors.New("still failing")
	ok, err := exception.Replay(ctx, dlq, 0, func(_ context.Context, e *event.Event) error {
		if e.Payload() == "bad" {
			return replayErr
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, ok)
	remaining := dlq.List()
	require.Len(t, remaining, 1)
	assert.Equal(t, 2, remaining[0].AttemptCount)
	assert.ErrorIs(t, remaining[0].Err, replayErr)
}

func TestDeadLetterHandler(t *testing.T) {
	ctx := context.Background()
	dlq := exception.NewInMemoryDLQ(exception.DefaultDLQConfig)

	h := exception.DeadLetter("orders", dlq)
	result, err := h.HandleException(ctx, errBoom, event.New("x"))
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 1, dlq.Len())

	rethrow := exception.DeadLetter("orders", dlq, exception.AndPropagate())
	_, err = rethrow.HandleException(ctx, errBoom, event.New("y"))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, dlq.Len())
}

func TestDeadLetterHandler_QueueFull(t *testing.T) {
	ctx := context.Background()
	dlq := exception.NewInMemoryDLQ(exception.DLQConfig{MaxSize: 1})
	h := exception.DeadLetter("orders", dlq)

	_, err := h.HandleException(ctx, errBoom, event.New(1))
	require.NoError(t, err)
	_, err = h.HandleException(ctx, errBoom, event.New(2))
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, exception.ErrDLQFull)
}

func TestPoisonDetector(t *testing.T) {
	var detected []string
	d := exception.NewPoisonDetector(exception.PoisonConfig{
		Threshold: 2,
		Window:    time.Minute,
		OnDetect:  func(key string, _ int) { detected = append(detected, key) },
	})

	e := event.New("x", event.WithCorrelationID("c1"))
	assert.False(t, d.IsPoison(e))
	assert.Equal(t, 1, d.Record(e))
	assert.False(t, d.IsPoison(e))
	assert.Equal(t, 2, d.Record(e))
	assert.True(t, d.IsPoison(e))
	assert.Equal(t, []string{"c1"}, detected)

	d.Clear(e)
	assert.False(t, d.IsPoison(e))
	assert.Equal(t, 0, d.Prune())
}

func TestPoisonHandler(t *testing.T) {
	ctx := context.Background()
	dlq := exception.NewInMemoryDLQ(exception.DefaultDLQConfig)
	d := exception.NewPoisonDetector(exception.PoisonConfig{Threshold: 2})
	h := exception.Poison(d, exception.Propagate(), exception.DeadLetter("f", dlq))

	e := event.New("x", event.WithCorrelationID("c1"))

	_, err := h.HandleException(ctx, errBoom, e)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, dlq.Len())

	_, err = h.HandleException(ctx, errBoom, e)
	assert.NoError(t, err)
	assert.Equal(t, 1, dlq.Len())
	assert.True(t, h.AcceptsAll())
}
