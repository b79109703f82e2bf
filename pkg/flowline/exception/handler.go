// Package exception provides the handlers a pipeline routes processing
// errors to.
//
// A Handler either recovers, returning a substitute event that completes
// the original successfully, or re-propagates, returning an error that
// fails the event. Handlers declare which failures they accept so a
// pipeline can verify at initialisation that every failure has a home.
package exception

import (
	"context"
	"errors"
	"log/slog"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/lifecycle"
)

// Handler handles a processing error raised for an event.
type Handler interface {
	// HandleException returns a recovered event, or an error to propagate.
	HandleException(ctx context.Context, err error, e *event.Event) (*event.Event, error)

	// Accepts reports whether the handler handles e. The failure being
	// handled is available as e.Err().
	Accepts(e *event.Event) bool
}

// Exhaustive is implemented by handlers that can say whether they accept
// every failure.
type Exhaustive interface {
	AcceptsAll() bool
}

// AcceptsAll reports whether h accepts every failure. Handlers that do not
// implement Exhaustive are assumed to.
func AcceptsAll(h Handler) bool {
	if x, ok := h.(Exhaustive); ok {
		return x.AcceptsAll()
	}
	return true
}

// ErrNotExhaustive indicates a pipeline's handler leaves some failures
// unhandled.
var ErrNotExhaustive = errors.New("exception handler does not accept all errors")

// Processor runs on the failed event while it is being handled.
type Processor interface {
	Process(ctx context.Context, e *event.Event) (*event.Event, error)
}

// Option configures the built-in handlers.
type Option func(*options)

type options struct {
	when      func(err error) bool
	processor Processor
	logger    *slog.Logger
	propagate bool
}

// When restricts the handler to failures matching pred.
func When(pred func(err error) bool) Option {
	return func(o *options) {
		o.when = pred
	}
}

// WhenIs restricts the handler to failures matching target per errors.Is.
func WhenIs(target error) Option {
	return When(func(err error) bool { return errors.Is(err, target) })
}

// WithProcessor runs p on the failed event before the handler decides the
// outcome.
func WithProcessor(p Processor) Option {
	return func(o *options) {
		o.processor = p
	}
}

// WithLogger logs handled failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// AndPropagate makes a recovering handler propagate the original error
// after doing its work.
func AndPropagate() Option {
	return func(o *options) {
		o.propagate = true
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) accepts(e *event.Event) bool {
	if o.when == nil {
		return true
	}
	return e != nil && e.Err() != nil && o.when(e.Err())
}

func (o *options) run(ctx context.Context, err error, e *event.Event) (*event.Event, error) {
	if o.logger != nil {
		o.logger.Warn("handling processing error",
			slog.String("event_id", e.ID()),
			slog.String("error", err.Error()),
		)
	}
	failed := e.WithError(err)
	if o.processor == nil {
		return failed, nil
	}
	return o.processor.Process(ctx, failed)
}

// base carries the shared options and lifecycle propagation.
type base struct {
	opts options
}

func (b *base) Accepts(e *event.Event) bool {
	return b.opts.accepts(e)
}

func (b *base) AcceptsAll() bool {
	return b.opts.when == nil
}

func (b *base) Initialise(ctx context.Context) error {
	return lifecycle.Initialise(ctx, b.opts.processor)
}

func (b *base) Start(ctx context.Context) error {
	return lifecycle.Start(ctx, b.opts.processor)
}

func (b *base) Stop(ctx context.Context) error {
	return lifecycle.Stop(ctx, b.opts.processor)
}

func (b *base) Dispose(ctx context.Context) error {
	return lifecycle.Dispose(ctx, b.opts.processor)
}

// PropagateHandler runs its processor, then fails the event with the
// original error.
type PropagateHandler struct {
	base
}

// Propagate creates a handler that re-propagates failures.
func Propagate(opts ...Option) *PropagateHandler {
	return &PropagateHandler{base{opts: newOptions(opts)}}
}

// HandleException implements Handler.
func (h *PropagateHandler) HandleException(ctx context.Context, err error, e *event.Event) (*event.Event, error) {
	if _, perr := h.opts.run(ctx, err, e); perr != nil {
		return nil, perr
	}
	return nil, err
}

// ContinueHandler runs its processor and completes the event successfully
// with the processor's result.
type ContinueHandler struct {
	base
}

// Continue creates a handler that recovers from failures.
func Continue(opts ...Option) *ContinueHandler {
	return &ContinueHandler{base{opts: newOptions(opts)}}
}

// HandleException implements Handler.
func (h *ContinueHandler) HandleException(ctx context.Context, err error, e *event.Event) (*event.Event, error) {
	result, perr := h.opts.run(ctx, err, e)
	if perr != nil {
		return nil, perr
	}
	if h.opts.propagate {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.WithError(nil), nil
}

// Compile-time interface checks.
var (
	_ Handler    = (*PropagateHandler)(nil)
	_ Handler    = (*ContinueHandler)(nil)
	_ Handler    = (*Router)(nil)
	_ Exhaustive = (*Router)(nil)
)

// Router routes a failure to the first handler that accepts it. A failure
// no handler accepts is propagated unchanged.
type Router struct {
	handlers []Handler
}

// Chain creates a Router over handlers, tried in order.
func Chain(handlers ...Handler) *Router {
	return &Router{handlers: handlers}
}

// HandleException implements Handler.
func (r *Router) HandleException(ctx context.Context, err error, e *event.Event) (*event.Event, error) {
	failed := e.WithError(err)
	for _, h := range r.handlers {
		if h.Accepts(failed) {
			return h.HandleException(ctx, err, e)
		}
	}
	return nil, err
}

// Accepts implements Handler.
func (r *Router) Accepts(e *event.Event) bool {
	for _, h := range r.handlers {
		if h.Accepts(e) {
			return true
		}
	}
	return false
}

// AcceptsAll implements Exhaustive. It is true when some handler accepts
// every failure.
func (r *Router) AcceptsAll() bool {
	for _, h := range r.handlers {
		if AcceptsAll(h) {
			return true
		}
	}
	return false
}

// Initialise propagates to every handler.
func (r *Router) Initialise(ctx context.Context) error {
	for _, h := range r.handlers {
		if err := lifecycle.Initialise(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

// Start propagates to every handler.
func (r *Router) Start(ctx context.Context) error {
	for _, h := range r.handlers {
		if err := lifecycle.Start(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

// Stop propagates to every handler, returning the joined errors.
func (r *Router) Stop(ctx context.Context) error {
	var errs []error
	for _, h := range r.handlers {
		errs = append(errs, lifecycle.Stop(ctx, h))
	}
	return errors.Join(errs...)
}

// Dispose propagates to every handler, returning the joined errors.
func (r *Router) Dispose(ctx context.Context) error {
	var errs []error
	for _, h := range r.handlers {
		errs = append(errs, lifecycle.Dispose(ctx, h))
	}
	return errors.Join(errs...)
}

// Validate returns ErrNotExhaustive if h leaves failures unhandled.
func Validate(h Handler) error {
	if h == nil || !AcceptsAll(h) {
		return ErrNotExhaustive
	}
	return nil
}
