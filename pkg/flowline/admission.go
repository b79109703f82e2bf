package flowline

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/notification"
	"github.com/randalmurphal/flowline/pkg/flowline/observability"
)

// Dispatch admits e for asynchronous processing. It implements Listener and
// is the entry point sources use.
//
// Admission takes an in-flight slot, checks the processing strategy for
// capacity and hands e to the sink. Under the Wait strategy a saturated
// pipeline retries until it has room or ctx ends; under FailFast it
// rejects at once. A rejected event's context is completed with the
// *backpressure.Error that is also returned.
//
// The outcome of an admitted event is reported through e.Context().
func (p *Pipeline) Dispatch(ctx context.Context, e *event.Event) error {
	if e == nil {
		return nil
	}
	if !p.canProcess.Load() {
		return ErrNotProcessing
	}

	err := p.selector.Admit(ctx, func(ctx context.Context) error {
		return p.tryAdmit(ctx, e)
	})
	if err == nil {
		return nil
	}
	if reason, ok := backpressure.ReasonOf(err); ok {
		p.stats.recordRejected(reason)
		p.metrics.RecordRejection(ctx, p.name, reason.String())
		observability.LogEventRejected(p.logger, p.name, e.ID(), reason.String())
		e.Context().Error(err)
	}
	return err
}

// Process dispatches e and waits for it to complete, returning the result
// event (nil when the chain filtered it) or the processing error.
func (p *Pipeline) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	if e == nil {
		return nil, nil
	}
	if err := p.Dispatch(ctx, e); err != nil {
		return nil, err
	}
	select {
	case <-e.Context().Done():
		return e.Context().Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CheckBackpressure reports, without blocking, whether e would be rejected
// right now.
func (p *Pipeline) CheckBackpressure(e *event.Event) error {
	if !p.canProcess.Load() {
		return ErrNotProcessing
	}
	if limit := p.maxConcurrency; limit > 0 && p.inFlight.Load() >= limit {
		return backpressure.New(p.name, backpressure.MaxConcurrencyExceeded)
	}
	return p.strategy.CheckBackpressureEmitting(e)
}

func (p *Pipeline) tryAdmit(ctx context.Context, e *event.Event) error {
	if !p.acquireSlot() {
		return backpressure.New(p.name, backpressure.MaxConcurrencyExceeded)
	}

	wait := p.selector.Strategy() == backpressure.Wait

	var err error
	if wait {
		err = p.strategy.CheckBackpressureAccepting(ctx, e)
	} else {
		err = p.strategy.CheckBackpressureEmitting(e)
	}
	if err != nil {
		p.releaseSlot()
		return err
	}

	sink := p.currentSink()
	if sink == nil || !p.canProcess.Load() {
		p.releaseSlot()
		return ErrNotProcessing
	}
	if wait {
		err = sink.Accept(ctx, e)
	} else {
		err = sink.Emit(ctx, e)
	}
	if err != nil {
		p.releaseSlot()
		return err
	}
	return nil
}

func (p *Pipeline) acquireSlot() bool {
	limit := p.maxConcurrency
	if limit <= 0 {
		p.inFlight.Add(1)
		return true
	}
	for {
		cur := p.inFlight.Load()
		if cur >= limit {
			return false
		}
		if p.inFlight.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (p *Pipeline) releaseSlot() {
	p.inFlight.Add(-1)
}

// execute runs one admitted event. It is the strategy's ExecuteFunc.
func (p *Pipeline) execute(ctx context.Context, e *event.Event) {
	ec := e.Context()
	start := time.Now()

	ec.FlowStack().Push(p.name)
	p.stats.recordReceived()
	p.stats.recordAdmitted()
	p.metrics.AddInFlight(ctx, p.name, 1)
	p.pending.Store(ec, struct{}{})

	// settle must run before ec completes: once Done is closed the slot
	// has to be free for the caller's next event.
	var settled atomic.Bool
	settle := func() {
		if settled.CompareAndSwap(false, true) {
			ec.FlowStack().Pop()
			p.pending.Delete(ec)
			p.releaseSlot()
		}
	}

	p.notify(notification.ProcessStart, e, nil)
	ec.OnComplete(func(result *event.Event, err error) {
		settle()
		p.completion.submit(func() {
			p.complete(e, result, err, start)
		})
	})

	spanCtx, span := p.spans.StartEventSpan(ctx, p.name, e.ID(), e.CorrelationID())
	result, err := p.runChain(spanCtx, e)
	if err != nil {
		result, err = p.handler.HandleException(spanCtx, err, e)
	}
	p.spans.EndSpanWithError(span, err)

	if err != nil {
		settle()
		ec.Error(err)
		return
	}
	p.notify(notification.ProcessEnd, e, nil)
	settle()
	ec.Success(result)
}

func (p *Pipeline) runChain(ctx context.Context, e *event.Event) (result *event.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{
				Flow:  p.name,
				Value: r,
				Stack: string(debug.Stack()),
			}
		}
	}()
	return p.chain.Process(ctx, e)
}

// complete runs on the completion scheduler once per admitted event. The
// slot and call-stack frame are already released by then.
func (p *Pipeline) complete(e *event.Event, result *event.Event, err error, start time.Time) {
	d := time.Since(start)

	p.notify(notification.ProcessComplete, e, err)

	p.stats.recordCompleted(result == nil, err, d)
	p.metrics.AddInFlight(context.Background(), p.name, -1)
	p.metrics.RecordEventProcessed(context.Background(), p.name, d, err)

	durationMs := float64(d.Microseconds()) / 1000
	if err != nil {
		observability.LogEventError(p.logger, p.name, e.ID(), err, durationMs)
		return
	}
	observability.LogEventComplete(p.logger, p.name, e.ID(), durationMs)
}

func (p *Pipeline) notify(action notification.Action, e *event.Event, err error) {
	p.dispatcher.Dispatch(notification.Notification{
		Action:        action,
		Flow:          p.name,
		EventID:       e.ID(),
		CorrelationID: e.CorrelationID(),
		Err:           err,
		Timestamp:     time.Now(),
	})
}
