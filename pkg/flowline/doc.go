/*
Package flowline provides an in-process message-processing pipeline engine.

# Overview

A Pipeline is a named flow: an optional MessageSource feeding an ordered
chain of Processors. Events are admitted under a maximum in-flight bound,
scheduled by a ProcessingStrategy, and their outcome is delivered through
the event's Context exactly once. When a pipeline is saturated it either
waits for room or rejects the event with a typed back-pressure error,
depending on what the source asks for.

# Basic Usage

Build a pipeline, initialise it, start it, then dispatch events:

	upper := flowline.NamedFunc("upper", func(ctx context.Context, e *event.Event) (*event.Event, error) {
	    return e.WithPayload(strings.ToUpper(e.Payload().(string))), nil
	})

	p := flowline.NewPipeline("greetings",
	    flowline.WithProcessors(upper),
	    flowline.WithMaxConcurrency(8),
	)
	if err := p.Initialise(ctx); err != nil {
	    log.Fatal(err)
	}
	if err := p.Start(ctx); err != nil {
	    log.Fatal(err)
	}
	defer p.Dispose(ctx)

	result, err := p.Process(ctx, event.New("hello"))
	fmt.Println(result.Payload()) // "HELLO"

# Chains and Interception

Processors run in declaration order. Returning a nil event ends the chain
without error; returning an error ends it and the error is wrapped in
*MessagingError. An InterceptingProcessor receives the stages after it as a
sub-chain and decides whether and how to run them:

	type timing struct{ flowline.Intercepting }

	func (t *timing) Process(ctx context.Context, e *event.Event) (*event.Event, error) {
	    start := time.Now()
	    out, err := t.ProcessNext(ctx, e)
	    log.Printf("downstream took %s", time.Since(start))
	    return out, err
	}

# Back-pressure

Admission takes an in-flight slot, asks the processing strategy for room
and hands the event to the strategy's sink. Rejections are
*backpressure.Error values carrying one of four reasons:

	err := p.Dispatch(ctx, evt)
	if errors.Is(err, backpressure.ErrMaxConcurrencyExceeded) {
	    // shed load
	}

# Lifecycle

Pipelines move NotInitialised -> Initialised -> Started <-> Stopped ->
Disposed. Out-of-order calls return *lifecycle.PhaseError. Dispose is
idempotent and stops a started pipeline first. Stop and Dispose log
component failures and continue unless WithStrictLifecycle is set.

# Observability

	p := flowline.NewPipeline("orders",
	    flowline.WithLogger(logger),
	    flowline.WithMetrics(observability.NewMetricsRecorder()),
	    flowline.WithTracing(true),
	    flowline.WithNotificationDispatcher(bus),
	)

Spans: flowline.flow.{name} > flowline.processor.{processor}.
Statistics are kept per pipeline and can be exported to Prometheus with
observability.NewStatsCollector.

# Thread Safety

  - ChainBuilder is NOT safe for concurrent use
  - Chain IS safe for concurrent use once built
  - Pipeline IS safe for concurrent use; lifecycle transitions are serialised

# Subpackages

  - event: events, execution contexts and the flow call stack
  - lifecycle: state machine shared by every construct
  - backpressure: rejection reasons and the wait/fail-fast selector
  - strategy: direct, queued and pooled processing strategies
  - exception: error handlers and the dead letter queue
  - notification: lifecycle and event notifications
  - observability: logging, metrics and tracing helpers
  - statestore: persisted run state (memory, SQLite)
  - processors, source: reusable stages and sources
  - expr, template: event conditions and text templates used by processors
  - config, registry: definitions, settings and factory registries
  - engine: builds and runs pipelines from configuration
*/
package flowline
