package processors

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

// ThrottleProcessor delays events so no more than a fixed rate pass.
type ThrottleProcessor struct {
	name    string
	limiter *rate.Limiter
}

// Throttle lets perSecond events through per second with bursts of up to
// burst. A non-positive perSecond disables throttling.
func Throttle(name string, perSecond float64, burst int) *ThrottleProcessor {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &ThrottleProcessor{name: name, limiter: rate.NewLimiter(limit, burst)}
}

// Name implements flowline.Named.
func (t *ThrottleProcessor) Name() string { return t.name }

// Process waits for a token, failing if ctx ends first.
func (t *ThrottleProcessor) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle %s: %w", t.name, err)
	}
	return e, nil
}

// Limit returns the configured events per second.
func (t *ThrottleProcessor) Limit() rate.Limit {
	return t.limiter.Limit()
}
