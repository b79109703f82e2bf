package source

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
)

// Channel feeds a pipeline from a Go channel. A goroutine started by Start
// reads payloads until Stop is called or the channel closes. It waits for
// room by default, so a saturated pipeline slows the reader rather than
// losing payloads.
type Channel[T any] struct {
	base
	in <-chan T

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel creates a source reading from in.
func NewChannel[T any](name string, in <-chan T, opts ...Option) *Channel[T] {
	c := &Channel[T]{in: in}
	c.init(name, backpressure.Wait, opts)
	return c
}

// Start launches the reader goroutine. Starting a running source is a
// no-op.
func (c *Channel[T]) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running.Store(true)
	go c.read(ctx, c.done)
	return nil
}

// Stop ends the reader and waits for it to exit, or for ctx to end.
func (c *Channel[T]) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	c.running.Store(false)
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the current reader exits. It is nil before Start.
func (c *Channel[T]) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Channel[T]) read(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-c.in:
			if !ok {
				c.logger.Debug("input channel closed")
				c.running.Store(false)
				return
			}
			err := c.dispatch(ctx, c.newEvent(payload, nil))
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			default:
				c.logger.Warn("payload not admitted", slog.String("error", err.Error()))
			}
		}
	}
}
