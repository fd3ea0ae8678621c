package goble

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/eventchan"
	"github.com/srg/asyncble/internal/groutine"
)

// dispatcher delivers callbacks one at a time on a single goroutine, in
// posting order.
type dispatcher struct {
	queue  *eventchan.Channel[func()]
	logger *logrus.Logger
	done   <-chan struct{}
}

func newDispatcher(logger *logrus.Logger) *dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	d := &dispatcher{
		queue:  eventchan.New[func()](),
		logger: logger,
	}
	d.done = groutine.GoDone(context.Background(), "ble-callback-dispatch", d.run)
	return d
}

func (d *dispatcher) run(ctx context.Context) {
	for fn := range d.queue.All(ctx) {
		d.invoke(fn)
	}
}

func (d *dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", fmt.Sprint(r)).Error("Callback handler panicked")
		}
	}()
	fn()
}

// post queues fn. Callbacks posted after close are dropped.
func (d *dispatcher) post(fn func()) {
	if !d.queue.Emit(fn) {
		d.logger.Debug("Callback after dispatcher close dropped")
	}
}

// flush waits until every callback posted before it has run. It must not be
// called from a callback.
func (d *dispatcher) flush() {
	done := make(chan struct{})
	if !d.queue.Emit(func() { close(done) }) {
		return
	}
	select {
	case <-done:
	case <-d.done:
	}
}

// close stops accepting callbacks and waits for the queued ones to run.
func (d *dispatcher) close() {
	d.queue.Close()
	<-d.done
}
