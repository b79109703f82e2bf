// Package observability provides the logging, metrics, and tracing used by
// flowline pipelines.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry, plus a Prometheus collector for statistics
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds flow and event context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "orders", evt.ID(), evt.CorrelationID())
//	enriched.Info("doing work") // includes flow, event_id, correlation_id
func EnrichLogger(logger *slog.Logger, flow, eventID, correlationID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("flow", flow),
		slog.String("event_id", eventID),
		slog.String("correlation_id", correlationID),
	)
}

// LogLifecycle logs a completed lifecycle transition.
func LogLifecycle(logger *slog.Logger, name, phase, state string) {
	if logger == nil {
		return
	}
	logger.Info("lifecycle transition",
		slog.String("flow", name),
		slog.String("phase", phase),
		slog.String("state", state),
	)
}

// LogLifecycleError logs a failed lifecycle phase.
func LogLifecycleError(logger *slog.Logger, name, phase string, err error) {
	if logger == nil {
		return
	}
	logger.Error("lifecycle phase failed",
		slog.String("flow", name),
		slog.String("phase", phase),
		slog.String("error", err.Error()),
	)
}

// LogStopFailure logs a swallowed failure while stopping or disposing a
// component.
func LogStopFailure(logger *slog.Logger, name, component string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("component shutdown failed",
		slog.String("flow", name),
		slog.String("component", component),
		slog.String("error", err.Error()),
	)
}

// LogEventRejected logs an event refused at admission.
func LogEventRejected(logger *slog.Logger, flow, eventID, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("event rejected",
		slog.String("flow", flow),
		slog.String("event_id", eventID),
		slog.String("reason", reason),
	)
}

// LogEventComplete logs successful event completion.
func LogEventComplete(logger *slog.Logger, flow, eventID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event completed",
		slog.String("flow", flow),
		slog.String("event_id", eventID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogEventError logs event processing failure.
func LogEventError(logger *slog.Logger, flow, eventID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("event failed",
		slog.String("flow", flow),
		slog.String("event_id", eventID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogProcessorError logs a processor failure.
func LogProcessorError(logger *slog.Logger, flow, processor string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("processor failed",
		slog.String("flow", flow),
		slog.String("processor", processor),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
