package exception

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/randalmurphal/flowline/pkg/flowline/event"
	"github.com/randalmurphal/flowline/pkg/flowline/lifecycle"
)

// PoisonConfig configures poison event detection.
type PoisonConfig struct {
	// Threshold is the number of failures before a key is poisoned.
	// Default: 3
	Threshold int

	// Window is how long failures for a key are remembered.
	// Default: 1 hour
	Window time.Duration

	// KeyFunc groups failures. Default: the event's correlation id, which
	// survives redelivery.
	KeyFunc func(e *event.Event) string

	// OnDetect is called once when a key reaches Threshold.
	OnDetect func(key string, failures int)
}

// DefaultPoisonConfig provides reasonable defaults.
var DefaultPoisonConfig = PoisonConfig{
	Threshold: 3,
	Window:    time.Hour,
}

type failureRecord struct {
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// PoisonDetector counts failures per key within a window.
type PoisonDetector struct {
	mu       sync.Mutex
	failures map[string]*failureRecord
	cfg      PoisonConfig
	now      func() time.Time
}

// NewPoisonDetector creates a detector.
func NewPoisonDetector(cfg PoisonConfig) *PoisonDetector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultPoisonConfig.Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultPoisonConfig.Window
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(e *event.Event) string { return e.CorrelationID() }
	}
	return &PoisonDetector{
		failures: make(map[string]*failureRecord),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Record counts a failure for e and returns the failure count in the
// current window.
func (d *PoisonDetector) Record(e *event.Event) int {
	key := d.cfg.KeyFunc(e)
	now := d.now()

	d.mu.Lock()
	rec, ok := d.failures[key]
	if !ok || now.Sub(rec.firstSeen) > d.cfg.Window {
		rec = &failureRecord{firstSeen: now}
		d.failures[key] = rec
	}
	rec.count++
	rec.lastSeen = now
	count := rec.count
	d.mu.Unlock()

	if count == d.cfg.Threshold && d.cfg.OnDetect != nil {
		d.cfg.OnDetect(key, count)
	}
	return count
}

// IsPoison reports whether e's key has reached the threshold.
func (d *PoisonDetector) IsPoison(e *event.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.failures[d.cfg.KeyFunc(e)]
	if !ok || d.now().Sub(rec.firstSeen) > d.cfg.Window {
		return false
	}
	return rec.count >= d.cfg.Threshold
}

// Clear forgets the failures recorded for e's key.
func (d *PoisonDetector) Clear(e *event.Event) {
	d.mu.Lock()
	delete(d.failures, d.cfg.KeyFunc(e))
	d.mu.Unlock()
}

// Prune drops records older than the window and returns how many remain.
func (d *PoisonDetector) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, rec := range d.failures {
		if now.Sub(rec.firstSeen) > d.cfg.Window {
			delete(d.failures, k)
		}
	}
	return len(d.failures)
}

// PoisonHandler sends failures to handler until their key is poisoned, then
// to poisoned.
type PoisonHandler struct {
	detector *PoisonDetector
	handler  Handler
	poisoned Handler
}

// Compile-time interface checks.
var (
	_ Handler    = (*PoisonHandler)(nil)
	_ Exhaustive = (*PoisonHandler)(nil)
)

// Poison wraps handler so that repeated failures go to poisoned instead.
func Poison(d *PoisonDetector, handler, poisoned Handler) *PoisonHandler {
	return &PoisonHandler{detector: d, handler: handler, poisoned: poisoned}
}

// HandleException implements Handler.
func (h *PoisonHandler) HandleException(ctx context.Context, err error, e *event.Event) (*event.Event, error) {
	if h.detector.Record(e) >= h.detector.cfg.Threshold {
		return h.poisoned.HandleException(ctx, err, e)
	}
	return h.handler.HandleException(ctx, err, e)
}

// Accepts implements Handler.
func (h *PoisonHandler) Accepts(e *event.Event) bool {
	return h.handler.Accepts(e) || h.poisoned.Accepts(e)
}

// AcceptsAll implements Exhaustive.
func (h *PoisonHandler) AcceptsAll() bool {
	return AcceptsAll(h.handler) && AcceptsAll(h.poisoned)
}

// Initialise propagates to both handlers.
func (h *PoisonHandler) Initialise(ctx context.Context) error {
	if err := lifecycle.Initialise(ctx, h.handler); err != nil {
		return err
	}
	return lifecycle.Initialise(ctx, h.poisoned)
}

// Start propagates to both handlers.
func (h *PoisonHandler) Start(ctx context.Context) error {
	if err := lifecycle.Start(ctx, h.handler); err != nil {
		return err
	}
	return lifecycle.Start(ctx, h.poisoned)
}

// Stop propagates to both handlers.
func (h *PoisonHandler) Stop(ctx context.Context) error {
	return errors.Join(lifecycle.Stop(ctx, h.handler), lifecycle.Stop(ctx, h.poisoned))
}

// Dispose propagates to both handlers.
func (h *PoisonHandler) Dispose(ctx context.Context) error {
	return errors.Join(lifecycle.Dispose(ctx, h.handler), lifecycle.Dispose(ctx, h.poisoned))
}
