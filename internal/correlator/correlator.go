// Package correlator matches asynchronous collaborator callbacks to the single
// caller waiting for them. A slot is addressed by (operation kind, target id);
// at most one slot per key is pending and each slot is resolved exactly once.
package correlator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Result is the outcome delivered to a waiter.
type Result struct {
	Value any
	Err   error
}

type slot struct {
	key  Key
	seq  uint64
	done chan Result // buffered(1), written once
}

func (s *slot) fulfill(r Result) {
	s.done <- r
}

// Correlator is the pending-slot table of one adapter.
type Correlator struct {
	mu     sync.Mutex
	slots  *orderedmap.OrderedMap[Key, *slot] // creation order
	seq    uint64
	closed bool

	dropped atomic.Uint64
	logger  *logrus.Logger
}

// New creates an empty correlator. A nil logger discards diagnostics.
func New(logger *logrus.Logger) *Correlator {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Correlator{
		slots:  orderedmap.New[Key, *slot](),
		logger: logger,
	}
}

// Register installs a pending slot for key. It must be called before the
// collaborator command is issued so that a fast callback finds the slot.
func (c *Correlator) Register(key Key) (*Waiter, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &device.CorrelationError{Reason: device.ReasonAdapterClosed, Key: key.String()}
	}

	var superseded *slot
	if prev, ok := c.slots.Get(key); ok {
		if key.Kind.policy != Supersede {
			c.mu.Unlock()
			return nil, &device.CorrelationError{Reason: device.ReasonDuplicateKey, Key: key.String()}
		}
		c.slots.Delete(key)
		superseded = prev
	}

	c.seq++
	s := &slot{key: key, seq: c.seq, done: make(chan Result, 1)}
	c.slots.Set(key, s)
	c.mu.Unlock()

	if superseded != nil {
		c.logger.WithFields(logrus.Fields{
			"key": key.String(),
			"seq": superseded.seq,
		}).Debug("Pending operation superseded")
		superseded.fulfill(Result{Err: &device.CorrelationError{Reason: device.ReasonSuperseded, Key: key.String()}})
	}

	return &Waiter{c: c, slot: s}, nil
}

// Resolve delivers a result to the slot pending for key. When no slot is
// pending the resolution is dropped and logged; this is the normal outcome
// of a callback racing a cancellation or supersession.
func (c *Correlator) Resolve(key Key, value any, err error) bool {
	if c.TryResolve(key, value, err) {
		return true
	}
	c.dropped.Add(1)
	c.logger.WithError(&DroppedCallback{Key: key, Err: err}).Debug("No pending operation for callback")
	return false
}

// TryResolve is Resolve without the dropped-callback diagnostic, for callers
// that route unmatched callbacks elsewhere.
func (c *Correlator) TryResolve(key Key, value any, err error) bool {
	s := c.take(key, 0)
	if s == nil {
		return false
	}
	s.fulfill(Result{Value: value, Err: err})
	return true
}

// Cancel fails the slot pending for key with device.ErrCancelled.
func (c *Correlator) Cancel(key Key) bool {
	s := c.take(key, 0)
	if s == nil {
		return false
	}
	s.fulfill(Result{Err: &device.CorrelationError{Reason: device.ReasonCancelled, Key: key.String()}})
	return true
}

// Close fails every pending slot with device.ErrAdapterClosed, oldest first.
// Later registrations fail and later resolutions are dropped.
func (c *Correlator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := make([]*slot, 0, c.slots.Len())
	for pair := c.slots.Oldest(); pair != nil; pair = pair.Next() {
		pending = append(pending, pair.Value)
	}
	c.slots = orderedmap.New[Key, *slot]()
	c.mu.Unlock()

	for _, s := range pending {
		s.fulfill(Result{Err: &device.CorrelationError{Reason: device.ReasonAdapterClosed, Key: s.key.String()}})
	}
}

// Pending reports the number of outstanding slots.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots.Len()
}

// IsPending reports whether a slot is outstanding for key.
func (c *Correlator) IsPending(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots.Get(key)
	return ok
}

// Dropped reports how many resolutions found no pending slot.
func (c *Correlator) Dropped() uint64 {
	return c.dropped.Load()
}

// take removes and returns the slot for key. A non-zero seq only matches the
// slot created with that sequence number.
func (c *Correlator) take(key Key, seq uint64) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots.Get(key)
	if !ok || (seq != 0 && s.seq != seq) {
		return nil
	}
	c.slots.Delete(key)
	return s
}

// Waiter is the caller side of one registered slot.
type Waiter struct {
	c    *Correlator
	slot *slot
}

// Key returns the key the waiter was registered under.
func (w *Waiter) Key() Key {
	return w.slot.key
}

// Wait blocks until the slot is resolved or ctx is done. Abandoning the wait
// removes the slot so a late callback for the same key is inert; the result
// is then a device.ErrCancelled wrapping the context cause. If the result
// was delivered concurrently it wins over the cancellation.
func (w *Waiter) Wait(ctx context.Context) (any, error) {
	select {
	case r := <-w.slot.done:
		return r.Value, r.Err
	case <-ctx.Done():
	}

	if w.c.take(w.slot.key, w.slot.seq) == nil {
		// Already resolved, the result is in flight.
		r := <-w.slot.done
		return r.Value, r.Err
	}
	return nil, &device.CorrelationError{
		Reason: device.ReasonCancelled,
		Key:    w.slot.key.String(),
		Cause:  context.Cause(ctx),
	}
}

// Abandon removes the slot without waking anyone. Use it when the command
// that would have produced the callback was rejected.
func (w *Waiter) Abandon() {
	w.c.take(w.slot.key, w.slot.seq)
}
