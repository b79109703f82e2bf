// Package source provides message sources that feed pipelines.
//
// A source is given its listener by the pipeline during Initialise and is
// started after the rest of the pipeline. Each source declares how the
// pipeline should admit its events when saturated:
//
//	trigger := source.NewTriggerable("api", source.WithBackPressure(backpressure.FailFast))
//	p := flowline.NewPipeline("orders", flowline.WithSource(trigger), ...)
//	...
//	e, err := trigger.Trigger(ctx, order)
package source

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/flowline/pkg/flowline"
	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
)

var (
	// ErrNotRunning is returned when a stopped source is asked to emit.
	ErrNotRunning = errors.New("source is not running")

	// ErrNoListener is returned when a source emits before a pipeline has
	// attached to it.
	ErrNoListener = errors.New("source has no listener")
)

// Option configures a source.
type Option func(*base)

// WithBackPressure sets the strategy the pipeline applies to this source.
func WithBackPressure(s backpressure.Strategy) Option {
	return func(b *base) { b.strategy = s }
}

// WithLogger sets the source's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithEventOptions applies opts to every event the source creates.
func WithEventOptions(opts ...event.Option) Option {
	return func(b *base) { b.eventOpts = append(b.eventOpts, opts...) }
}

// base holds what every source shares: its listener, declared strategy
// and running flag.
type base struct {
	name      string
	strategy  backpressure.Strategy
	logger    *slog.Logger
	eventOpts []event.Option

	listenerMu sync.RWMutex
	listener   flowline.Listener
	running    atomic.Bool
}

func (b *base) init(name string, def backpressure.Strategy, opts []Option) {
	b.name, b.strategy, b.logger = name, def, slog.Default()
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(slog.String("source", name))
}

// Name returns the source name. Events it creates carry it as their
// source.
func (b *base) Name() string { return b.name }

// SetListener implements flowline.MessageSource.
func (b *base) SetListener(l flowline.Listener) {
	b.listenerMu.Lock()
	b.listener = l
	b.listenerMu.Unlock()
}

// BackPressureStrategy implements flowline.MessageSource.
func (b *base) BackPressureStrategy() backpressure.Strategy { return b.strategy }

// IsRunning reports whether the source has been started and not stopped.
func (b *base) IsRunning() bool { return b.running.Load() }

func (b *base) newEvent(payload any, opts []event.Option) *event.Event {
	all := make([]event.Option, 0, len(b.eventOpts)+len(opts)+1)
	all = append(all, event.WithSource(b.name))
	all = append(all, b.eventOpts...)
	all = append(all, opts...)
	return event.New(payload, all...)
}

func (b *base) dispatch(ctx context.Context, e *event.Event) error {
	if !b.running.Load() {
		return ErrNotRunning
	}
	b.listenerMu.RLock()
	l := b.listener
	b.listenerMu.RUnlock()
	if l == nil {
		return ErrNoListener
	}
	return l.Dispatch(ctx, e)
}
