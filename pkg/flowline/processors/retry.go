package processors

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/randalmurphal/flowline/pkg/flowline"
	flowerrors "github.com/randalmurphal/flowline/pkg/flowline/errors"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/lifecycle"
)

// AttemptsVariable is set on the result of a RetryProcessor to the number
// of attempts it took.
const AttemptsVariable = "flowline.retry.attempts"

// RetryProcessor re-runs the rest of the chain until it succeeds, fails
// permanently or runs out of attempts. Each attempt gets the event as it
// reached the retry stage.
type RetryProcessor struct {
	flowline.Intercepting
	cfg    flowerrors.RetryConfig
	logger *slog.Logger
}

// Retry creates an until-successful stage. Unless cfg sets RetryableFunc,
// every failure is retried except explicitly permanent ones, cancellation
// and lifecycle violations.
func Retry(cfg flowerrors.RetryConfig) *RetryProcessor {
	if cfg.RetryableFunc == nil {
		cfg.RetryableFunc = retryUnlessPermanent
	}
	return &RetryProcessor{cfg: cfg}
}

// WithLogger logs each retry at warn level.
func (r *RetryProcessor) WithLogger(logger *slog.Logger) *RetryProcessor {
	r.logger = logger
	return r
}

// Name implements flowline.Named.
func (r *RetryProcessor) Name() string { return "retry" }

// Process implements flowline.Processor.
func (r *RetryProcessor) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	cfg := r.cfg
	if r.logger != nil {
		onRetry := cfg.OnRetry
		cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
			r.logger.Warn("retrying downstream stages",
				slog.String("event_id", e.ID()),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)
			if onRetry != nil {
				onRetry(attempt, err, backoff)
			}
		}
	}

	result := flowerrors.WithRetryContext(ctx, cfg, func(ctx context.Context) (*event.Event, error) {
		return r.ProcessNext(ctx, e)
	})
	if result.Err != nil {
		return nil, result.Err
	}
	if result.Value == nil {
		return nil, nil
	}
	return result.Value.WithVariable(AttemptsVariable, result.Attempts), nil
}

func retryUnlessPermanent(err error) bool {
	var ce *flowerrors.CategorizedError
	if errors.As(err, &ce) {
		return ce.Category != flowerrors.CategoryPermanent
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, lifecycle.ErrIllegalPhase)
}
