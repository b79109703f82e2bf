package processors

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowline/pkg/flowline"
	flowerrors "github.com/randalmurphal/flowline/pkg/flowline/errors"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

var errBoom = errors.New("boom")

func run(t *testing.T, payload any, procs ...flowline.Processor) (*event.Event, error) {
	t.Helper()
	chain, err := flowline.NewChainBuilder("test").Chain(procs...).Build()
	require.NoError(t, err)
	return chain.Process(context.Background(), event.New(payload))
}

// flaky fails the first n calls with err.
type flaky struct {
	calls atomic.Int32
	n     int32
	err   error
}

func (f *flaky) Name() string { return "flaky" }

func (f *flaky) Process(_ context.Context, e *event.Event) (*event.Event, error) {
	if f.calls.Add(1) <= f.n {
		return nil, f.err
	}
	return e, nil
}

func TestTransform(t *testing.T) {
	out, err := run(t, "hello", Transform("upper", strings.ToUpper))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out.Payload())

	_, err = run(t, 42, Transform("upper", strings.ToUpper))
	assert.ErrorIs(t, err, ErrPayloadType)
}

func TestTransformErr(t *testing.T) {
	double := TransformErr("double", func(_ context.Context, n int) (int, error) {
		if n < 0 {
			return 0, errBoom
		}
		return n * 2, nil
	})

	out, err := run(t, 21, double)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Payload())

	_, err = run(t, -1, double)
	assert.ErrorIs(t, err, errBoom)
}

func TestVariables(t *testing.T) {
	out, err := run(t, "x", SetVariable("region", "eu"), SetVariable("tier", 1), RemoveVariable("tier"))
	require.NoError(t, err)

	v, ok := out.Variable("region")
	assert.True(t, ok)
	assert.Equal(t, "eu", v)
	_, ok = out.Variable("tier")
	assert.False(t, ok)
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	out, err := run(t, "payload", Log(logger, slog.LevelDebug))
	require.NoError(t, err)
	assert.Equal(t, "payload", out.Payload())
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "payload=payload")
	assert.Contains(t, buf.String(), "event_id="+out.ID())
}

func TestFilter(t *testing.T) {
	var reached atomic.Int32
	downstream := flowline.NamedFunc("downstream", func(_ context.Context, e *event.Event) (*event.Event, error) {
		reached.Add(1)
		return e, nil
	})

	tests := []struct {
		name      string
		region    string
		opts      []FilterOption
		wantOut   bool
		wantErr   error
		wantReach int32
	}{
		{name: "accepted", region: "eu", wantOut: true, wantReach: 1},
		{name: "dropped", region: "us"},
		{name: "rejected with error", region: "us", opts: []FilterOption{RejectWithError()}, wantErr: ErrRejected},
		{name: "unaccepted route", region: "us", opts: []FilterOption{OnUnaccepted(SetVariable("routed", true))}, wantOut: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached.Store(0)
			f := Filter("eu-only", VariableEquals("region", "eu"), tt.opts...)

			out, err := run(t, "x", SetVariable("region", tt.region), f, downstream)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantOut, out != nil)
			assert.Equal(t, tt.wantReach, reached.Load())
		})
	}
}

func TestPredicates(t *testing.T) {
	e := event.New("x", event.WithVariables(map[string]any{"a": 1}))

	assert.True(t, HasVariable("a")(e))
	assert.False(t, HasVariable("b")(e))
	assert.True(t, VariableEquals("a", 1)(e))
	assert.False(t, VariableEquals("a", "1")(e))
	assert.True(t, Not(HasVariable("b"))(e))
}

func fastRetry(attempts int) flowerrors.RetryConfig {
	return flowerrors.NewRetryConfig(
		flowerrors.WithMaxAttempts(attempts),
		flowerrors.WithInitialBackoff(time.Millisecond),
		flowerrors.WithMaxBackoff(2*time.Millisecond),
		flowerrors.WithJitter(0),
	)
}

func TestRetry_RerunsDownstreamUntilSuccess(t *testing.T) {
	f := &flaky{n: 2, err: errBoom}
	var retries atomic.Int32
	cfg := fastRetry(5)
	cfg.OnRetry = func(int, error, time.Duration) { retries.Add(1) }

	out, err := run(t, "x", Retry(cfg), f)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.Equal(t, int32(2), retries.Load())

	attempts, _ := out.Variable(AttemptsVariable)
	assert.Equal(t, 3, attempts)
}

func TestRetry_Exhausted(t *testing.T) {
	f := &flaky{n: 10, err: errBoom}

	_, err := run(t, "x", Retry(fastRetry(3)), f)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, int32(3), f.calls.Load())

	var ce *flowerrors.CategorizedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "max retries exceeded", ce.Context)

	var me *flowline.MessagingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "flaky", me.Processor)
}

func TestRetry_PermanentNotRetried(t *testing.T) {
	f := &flaky{n: 10, err: flowerrors.Permanent(errBoom, "bad input")}

	_, err := run(t, "x", Retry(fastRetry(5)), f)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRetry_EachAttemptSeesOriginalEvent(t *testing.T) {
	var seen []any
	record := flowline.NamedFunc("record", func(_ context.Context, e *event.Event) (*event.Event, error) {
		seen = append(seen, e.Payload())
		if len(seen) < 2 {
			return nil, errBoom
		}
		return e, nil
	})

	out, err := run(t, "a", Retry(fastRetry(3)), Transform("suffix", func(s string) string { return s + "!" }), record)
	require.NoError(t, err)
	assert.Equal(t, []any{"a!", "a!"}, seen)
	assert.Equal(t, "a!", out.Payload())
}

func TestRetry_FilteredResult(t *testing.T) {
	drop := flowline.NamedFunc("drop", func(context.Context, *event.Event) (*event.Event, error) {
		return nil, nil
	})
	out, err := run(t, "x", Retry(fastRetry(3)), drop)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestThrottle(t *testing.T) {
	th := Throttle("slow", 1, 1)
	chain, err := flowline.NewChainBuilder("test").Chain(th).Build()
	require.NoError(t, err)

	_, err = chain.Process(context.Background(), event.New("first"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = chain.Process(ctx, event.New("second"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle slow")
}

func TestThrottle_Unlimited(t *testing.T) {
	th := Throttle("free", 0, 0)
	for range 100 {
		_, err := th.Process(context.Background(), event.New("x"))
		require.NoError(t, err)
	}
}
