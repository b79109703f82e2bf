package flowline

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/lifecycle"
)

type stage struct {
	proc Processor
	info StageInfo
}

// Chain is a built, immutable sequence of processors. It is itself a
// Processor, so chains nest.
//
// Process runs the head stages in order. A nil result ends the chain with
// (nil, nil); an error ends it and is returned wrapped in *MessagingError.
// Intercepting stages run the rest of the chain through the sub-chain they
// were given at build time.
type Chain struct {
	name         string
	stages       []stage
	processors   []Processor
	interceptors []Interceptor

	// root is false for the sub-chains handed to intercepting stages;
	// lifecycle and the stopped guard belong to the root chain only.
	root    bool
	stopped atomic.Bool
}

// Compile-time interface checks.
var (
	_ Processor               = (*Chain)(nil)
	_ Named                   = (*Chain)(nil)
	_ lifecycle.Initialisable = (*Chain)(nil)
	_ lifecycle.Startable     = (*Chain)(nil)
	_ lifecycle.Stoppable     = (*Chain)(nil)
	_ lifecycle.Disposable    = (*Chain)(nil)
)

// Name returns the chain name.
func (c *Chain) Name() string {
	return c.name
}

// Processors returns the configured processors in declaration order.
func (c *Chain) Processors() []Processor {
	out := make([]Processor, len(c.processors))
	copy(out, c.processors)
	return out
}

// Process implements Processor.
func (c *Chain) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	if e == nil {
		return nil, nil
	}
	if c.root && c.stopped.Load() {
		return nil, &MessagingError{Processor: c.name, Event: e, Err: ErrChainStopped}
	}

	for _, s := range c.stages {
		e.Context().FlowStack().SetProcessor(s.info.Path)

		result, err := c.invoke(ctx, s, e)
		if err != nil {
			var me *MessagingError
			if errors.As(err, &me) {
				return nil, err
			}
			return nil, &MessagingError{Processor: s.info.Name, Event: e, Err: err}
		}
		if result == nil {
			return nil, nil
		}
		e = result
	}
	return e, nil
}

func (c *Chain) invoke(ctx context.Context, s stage, e *event.Event) (*event.Event, error) {
	if len(c.interceptors) == 0 {
		return s.proc.Process(ctx, e)
	}
	next := ProcessorFunc(s.proc.Process)
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		ic, inner := c.interceptors[i], next
		next = func(ctx context.Context, e *event.Event) (*event.Event, error) {
			return ic(ctx, s.info, e, inner)
		}
	}
	return next(ctx, e)
}

// Initialise initialises every processor in order. On failure the
// processors already initialised are disposed in reverse order.
func (c *Chain) Initialise(ctx context.Context) error {
	for i, p := range c.processors {
		if err := lifecycle.Initialise(ctx, p); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = lifecycle.Dispose(ctx, c.processors[j])
			}
			return &MessagingError{Processor: NameOf(p), Err: err}
		}
	}
	return nil
}

// Start starts every processor in order and re-enables processing. On
// failure the processors already started are stopped in reverse order.
func (c *Chain) Start(ctx context.Context) error {
	for i, p := range c.processors {
		if err := lifecycle.Start(ctx, p); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = lifecycle.Stop(ctx, c.processors[j])
			}
			return &MessagingError{Processor: NameOf(p), Err: err}
		}
	}
	c.stopped.Store(false)
	return nil
}

// Stop rejects further events with ErrChainStopped and stops every
// processor. All processors are stopped even if some fail; the failures
// are joined.
func (c *Chain) Stop(ctx context.Context) error {
	c.stopped.Store(true)
	var errs []error
	for _, p := range c.processors {
		if err := lifecycle.Stop(ctx, p); err != nil {
			errs = append(errs, &MessagingError{Processor: NameOf(p), Err: err})
		}
	}
	return errors.Join(errs...)
}

// Dispose disposes every processor, joining failures.
func (c *Chain) Dispose(ctx context.Context) error {
	c.stopped.Store(true)
	var errs []error
	for _, p := range c.processors {
		if err := lifecycle.Dispose(ctx, p); err != nil {
			errs = append(errs, &MessagingError{Processor: NameOf(p), Err: err})
		}
	}
	return errors.Join(errs...)
}

// ChainBuilder assembles a Chain.
//
//	chain, err := flowline.NewChainBuilder("orders").
//	    Chain(validate, enrich, store).
//	    Build()
type ChainBuilder struct {
	name         string
	processors   []Processor
	interceptors []Interceptor
	allowEmpty   bool
	err          error
}

// NewChainBuilder starts a chain named name.
func NewChainBuilder(name string) *ChainBuilder {
	return &ChainBuilder{name: name}
}

// Chain appends processors.
func (b *ChainBuilder) Chain(ps ...Processor) *ChainBuilder {
	for _, p := range ps {
		if p == nil {
			b.err = errors.Join(b.err, ErrNilProcessor)
			continue
		}
		b.processors = append(b.processors, p)
	}
	return b
}

// AllowEmpty lets Build return a pass-through chain when no processors were
// added.
func (b *ChainBuilder) AllowEmpty() *ChainBuilder {
	b.allowEmpty = true
	return b
}

// Intercept adds interceptors applied around every stage invocation. The
// first interceptor added is outermost.
func (b *ChainBuilder) Intercept(interceptors ...Interceptor) *ChainBuilder {
	b.interceptors = append(b.interceptors, interceptors...)
	return b
}

// Build composes the chain.
//
// Processors are walked last to first. Plain processors accumulate; an
// intercepting processor is handed the accumulated run as its next stage
// (unless it is last) and then replaces the run. What remains is the head
// of the chain.
func (b *ChainBuilder) Build() (*Chain, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.processors) == 0 && !b.allowEmpty {
		return nil, ErrEmptyChain
	}

	var run []stage
	for i := len(b.processors) - 1; i >= 0; i-- {
		p := b.processors[i]
		s := stage{proc: p, info: StageInfo{
			Name: NameOf(p),
			Path: b.name + "/processors/" + strconv.Itoa(i),
		}}

		if ip, ok := p.(InterceptingProcessor); ok {
			if len(run) > 0 {
				ip.SetNext(b.subChain(run))
			}
			run = []stage{s}
			continue
		}
		run = append([]stage{s}, run...)
	}

	procs := make([]Processor, len(b.processors))
	copy(procs, b.processors)
	return &Chain{
		name:         b.name,
		stages:       run,
		processors:   procs,
		interceptors: b.interceptors,
		root:         true,
	}, nil
}

func (b *ChainBuilder) subChain(run []stage) *Chain {
	stages := make([]stage, len(run))
	copy(stages, run)
	procs := make([]Processor, len(run))
	for i, s := range run {
		procs[i] = s.proc
	}
	return &Chain{
		name:         b.name,
		stages:       stages,
		processors:   procs,
		interceptors: b.interceptors,
	}
}
