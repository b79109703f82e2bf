package backpressure_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
)

func TestError_ReasonSentinels(t *testing.T) {
	sentinels := map[backpressure.Reason]error{
		backpressure.MaxConcurrencyExceeded:              backpressure.ErrMaxConcurrencyExceeded,
		backpressure.RequiredSchedulerBusy:               backpressure.ErrSchedulerBusy,
		backpressure.RequiredSchedulerBusyWithFullBuffer: backpressure.ErrSchedulerBusyWithFullBuffer,
		backpressure.EventsAccumulated:                   backpressure.ErrEventsAccumulated,
	}

	for _, reason := range backpressure.Reasons() {
		t.Run(reason.String(), func(t *testing.T) {
			err := backpressure.New("orders", reason)

			assert.ErrorIs(t, err, backpressure.ErrBackPressure)
			assert.ErrorIs(t, err, sentinels[reason])
			for other, sentinel := range sentinels {
				if other != reason {
					assert.NotErrorIs(t, err, sentinel)
				}
			}

			got, ok := backpressure.ReasonOf(err)
			require.True(t, ok)
			assert.Equal(t, reason, got)
			assert.Contains(t, err.Error(), "flow 'orders'")
		})
	}
}

func TestError_Wrapped(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", backpressure.New("f", backpressure.RequiredSchedulerBusy))

	assert.True(t, backpressure.IsBackPressure(err))
	reason, ok := backpressure.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, backpressure.RequiredSchedulerBusy, reason)

	_, ok = backpressure.ReasonOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, backpressure.IsBackPressure(errors.New("plain")))
}

func TestInterrupted(t *testing.T) {
	err := backpressure.Interrupted("f", context.Canceled)

	assert.ErrorIs(t, err, backpressure.ErrEventsAccumulated)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    backpressure.Strategy
		wantErr bool
	}{
		{"", backpressure.Wait, false},
		{"wait", backpressure.Wait, false},
		{"FAIL", backpressure.FailFast, false},
		{"fail_fast", backpressure.FailFast, false},
		{"Drop", backpressure.FailFast, false},
		{"sometimes", backpressure.Wait, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := backpressure.ParseStrategy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelector_FailFastTriesOnce(t *testing.T) {
	s := backpressure.NewSelector("f", backpressure.FailFast, 0)
	calls := 0

	err := s.Admit(context.Background(), func(context.Context) error {
		calls++
		return backpressure.New("f", backpressure.MaxConcurrencyExceeded)
	})

	assert.ErrorIs(t, err, backpressure.ErrMaxConcurrencyExceeded)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), s.Attempts())
}

func TestSelector_WaitRetriesUntilAdmitted(t *testing.T) {
	s := backpressure.NewSelector("f", backpressure.Wait, time.Millisecond)
	calls := 0

	err := s.Admit(context.Background(), func(context.Context) error {
		calls++
		if calls < 5 {
			return backpressure.New("f", backpressure.RequiredSchedulerBusy)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, backpressure.Wait, s.Strategy())
}

func TestSelector_WaitInterrupted(t *testing.T) {
	s := backpressure.NewSelector("f", backpressure.Wait, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Admit(ctx, func(context.Context) error {
		return backpressure.New("f", backpressure.MaxConcurrencyExceeded)
	})

	assert.ErrorIs(t, err, backpressure.ErrEventsAccumulated)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, s.Attempts(), int64(1))
}

func TestSelector_WaitStopsOnOtherErrors(t *testing.T) {
	s := backpressure.NewSelector("f", backpressure.Wait, time.Millisecond)
	boom := errors.New("not started")
	calls := 0

	err := s.Admit(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
