// Package eventchan provides an ordered, cancellable event sequence with at
// most one active consumer, used for continuous collaborator notifications.
package eventchan

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	list "github.com/bahlo/generic-list-go"
)

var (
	// ErrClosed is the terminal signal: the channel is closed and drained.
	ErrClosed = errors.New("event channel closed")
	// ErrBusy is returned to a second consumer while another one is waiting.
	ErrBusy = errors.New("event channel already has an active consumer")
)

// Channel is a FIFO of events delivered to one consumer at a time.
// Emission never blocks. The zero value is not usable; call New.
type Channel[T any] struct {
	mu       sync.Mutex
	buf      *list.List[T]
	capacity int         // 0 = unbounded
	waiter   chan T      // set while a consumer is blocked in Next; buffer is empty then
	closed   bool

	dropped atomic.Uint64
}

type config struct {
	capacity int
}

// Option configures a Channel.
type Option func(*config)

// WithCapacity bounds the buffer to n events, discarding the oldest buffered
// event when full. n <= 0 keeps the default unbounded buffer.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// New creates an open channel. By default every event is kept.
func New[T any](opts ...Option) *Channel[T] {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Channel[T]{
		buf:      list.New[T](),
		capacity: cfg.capacity,
	}
}

// Emit hands v to the waiting consumer or buffers it. It reports false if
// the channel is already closed, in which case v is discarded.
func (c *Channel[T]) Emit(v T) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if w := c.waiter; w != nil {
		c.waiter = nil
		c.mu.Unlock()
		w <- v
		return true
	}
	if c.capacity > 0 && c.buf.Len() >= c.capacity {
		c.buf.Remove(c.buf.Front())
		c.dropped.Add(1)
	}
	c.buf.PushBack(v)
	c.mu.Unlock()
	return true
}

// Next returns the oldest event, blocking until one is emitted. After Close
// it keeps returning buffered events until drained, then ErrClosed on every
// call. If ctx ends first, ctx.Err() is returned and the channel stays usable.
func (c *Channel[T]) Next(ctx context.Context) (T, error) {
	var zero T

	c.mu.Lock()
	if e := c.buf.Front(); e != nil {
		c.buf.Remove(e)
		c.mu.Unlock()
		return e.Value, nil
	}
	if c.closed {
		c.mu.Unlock()
		return zero, ErrClosed
	}
	if c.waiter != nil {
		c.mu.Unlock()
		return zero, ErrBusy
	}
	w := make(chan T, 1)
	c.waiter = w
	c.mu.Unlock()

	select {
	case v, ok := <-w:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	case <-ctx.Done():
	}

	c.mu.Lock()
	if c.waiter == w {
		c.waiter = nil
		c.mu.Unlock()
		return zero, ctx.Err()
	}
	c.mu.Unlock()

	// An emitter or Close claimed the waiter before we withdrew; take what it
	// handed over so the event is not lost.
	v, ok := <-w
	if !ok {
		return zero, ErrClosed
	}
	return v, nil
}

// All iterates events until the channel is closed and drained or ctx ends.
func (c *Channel[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := c.Next(ctx)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Close stops accepting events and wakes a waiting consumer with the
// terminal signal. Buffered events remain drainable. Close is idempotent.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	w := c.waiter
	c.waiter = nil
	c.mu.Unlock()

	if w != nil {
		close(w)
	}
}

// Closed reports whether Close has been called.
func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len returns the number of buffered events.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Len()
}

// Dropped returns how many events the bounded variant discarded.
func (c *Channel[T]) Dropped() uint64 {
	return c.dropped.Load()
}
