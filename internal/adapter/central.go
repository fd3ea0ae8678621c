package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/correlator"
	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/internal/eventchan"
)

// Central is the central-role adapter.
type Central struct {
	stack  device.CentralStack
	slots  *correlator.Correlator
	logger *logrus.Logger
	opts   Options

	states      *eventchan.Channel[device.State]
	disconnects *eventchan.Channel[device.DisconnectEvent]

	scanMu sync.Mutex
	scan   *eventchan.Channel[device.Discovery] // nil when not scanning

	peripherals *hashmap.Map[device.PeripheralID, *Peripheral]
	closed      atomic.Bool
}

// NewCentral creates a Central and registers its callbacks with stack.
// A nil opts uses DefaultOptions.
func NewCentral(stack device.CentralStack, logger *logrus.Logger, opts *Options) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Central{
		stack:       stack,
		slots:       correlator.New(logger),
		logger:      logger,
		opts:        orDefault(opts),
		states:      eventchan.New[device.State](),
		disconnects: eventchan.New[device.DisconnectEvent](),
		peripherals: hashmap.New[device.PeripheralID, *Peripheral](),
	}
	stack.Register(device.CentralCallbacks{
		OnStateUpdate: c.handleStateUpdate,
		OnDiscover:    c.handleDiscover,
		OnConnect:     c.handleConnect,
		OnConnectFail: c.handleConnectFail,
		OnDisconnect:  c.handleDisconnect,
	})
	return c
}

// States returns the feed of manager state updates.
func (c *Central) States() *eventchan.Channel[device.State] {
	return c.states
}

// Disconnects returns the feed of ended connections, clean or failed.
func (c *Central) Disconnects() *eventchan.Channel[device.DisconnectEvent] {
	return c.disconnects
}

// Scan starts discovery and returns the channel of this scan session.
// A scan already in progress is replaced and its channel closed.
func (c *Central) Scan(services []string, allowDuplicates bool) (*eventchan.Channel[device.Discovery], error) {
	if c.closed.Load() {
		return nil, device.ErrAdapterClosed
	}

	c.scanMu.Lock()
	active := c.scan != nil
	c.scanMu.Unlock()
	if active {
		// The old session's discoveries must land in its own channel.
		if err := c.stack.StopScan(); err != nil {
			c.logger.WithError(err).Debug("Failed to stop previous scan")
		}
	}

	ch := eventchan.New[device.Discovery](eventchan.WithCapacity(c.opts.ScanBuffer))
	c.scanMu.Lock()
	prev := c.scan
	c.scan = ch
	c.scanMu.Unlock()
	if prev != nil {
		prev.Close()
	}

	if err := c.stack.Scan(services, allowDuplicates); err != nil {
		c.swapScan(ch)
		ch.Close()
		return nil, device.NewHardwareError("scan", "", err)
	}

	c.logger.WithFields(logrus.Fields{
		"services":         services,
		"allow_duplicates": allowDuplicates,
	}).Debug("Scan started")
	return ch, nil
}

// StopScan stops discovery and closes the current scan channel.
func (c *Central) StopScan() error {
	err := c.stack.StopScan()
	if ch := c.swapScan(nil); ch != nil {
		ch.Close()
	}
	return device.NewHardwareError("stop-scan", "", err)
}

// swapScan clears the current scan channel. A non-nil only clears it if it
// is still the current one. Returns the channel that was removed.
func (c *Central) swapScan(only *eventchan.Channel[device.Discovery]) *eventchan.Channel[device.Discovery] {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	cur := c.scan
	if only != nil && cur != only {
		return nil
	}
	c.scan = nil
	return cur
}

// Connect connects to id and returns its Peripheral adapter. A newer Connect
// to the same id supersedes this one. When ctx ends first the pending
// connection attempt is cancelled.
func (c *Central) Connect(ctx context.Context, id device.PeripheralID) (*Peripheral, error) {
	key := KindConnect.Key(string(id))
	_, err := call[device.PeripheralID](ctx, c.slots, key, func() error {
		return c.stack.Connect(id)
	})
	if err != nil {
		if errors.Is(err, device.ErrCancelled) && c.opts.CancelConnectOnAbandon {
			if cerr := c.stack.CancelConnection(id); cerr != nil {
				c.logger.WithFields(logrus.Fields{
					"peripheral": id,
					"error":      cerr,
				}).Warn("Failed to cancel abandoned connection attempt")
			}
		}
		return nil, err
	}
	return c.attach(id)
}

// attach returns the Peripheral adapter for a connected id, creating it once.
func (c *Central) attach(id device.PeripheralID) (*Peripheral, error) {
	if p, ok := c.peripherals.Get(id); ok {
		return p, nil
	}
	client, err := c.stack.Client(id)
	if err != nil {
		return nil, fmt.Errorf("peripheral %q connected but unavailable: %w", id, err)
	}
	p := NewPeripheral(client, c.logger, &c.opts)
	actual, loaded := c.peripherals.GetOrInsert(id, p)
	if loaded {
		p.Close()
	}
	return actual, nil
}

// Peripheral returns the adapter of a connected peripheral.
func (c *Central) Peripheral(id device.PeripheralID) (*Peripheral, bool) {
	return c.peripherals.Get(id)
}

// Disconnect requests the connection to id to end. The outcome is reported
// on Disconnects.
func (c *Central) Disconnect(id device.PeripheralID) error {
	return device.NewHardwareError("disconnect", string(id), c.stack.CancelConnection(id))
}

// Close fails pending operations, closes every channel and every peripheral
// adapter. It does not disconnect peripherals.
func (c *Central) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if ch := c.swapScan(nil); ch != nil {
		if err := c.stack.StopScan(); err != nil {
			c.logger.WithError(err).Debug("Stop scan on close failed")
		}
		ch.Close()
	}
	c.slots.Close()
	c.states.Close()
	c.disconnects.Close()
	c.peripherals.Range(func(id device.PeripheralID, p *Peripheral) bool {
		p.Close()
		return true
	})
}

func (c *Central) handleStateUpdate(state device.State) {
	c.logger.WithField("state", state).Debug("Central state updated")
	c.states.Emit(state)
}

func (c *Central) handleDiscover(d device.Discovery) {
	c.scanMu.Lock()
	ch := c.scan
	c.scanMu.Unlock()
	if ch == nil {
		c.logger.WithField("peripheral", d.ID).Debug("Discovery outside a scan session dropped")
		return
	}
	ch.Emit(d)
}

func (c *Central) handleConnect(id device.PeripheralID) {
	c.slots.Resolve(KindConnect.Key(string(id)), id, nil)
}

func (c *Central) handleConnectFail(id device.PeripheralID, err error) {
	if err == nil {
		err = device.ErrNotConnected
	}
	resolve(c.slots, KindConnect.Key(string(id)), nil, err)
}

func (c *Central) handleDisconnect(id device.PeripheralID, err error) {
	if p, ok := c.peripherals.Get(id); ok {
		c.peripherals.Del(id)
		p.Close()
	}

	fields := logrus.Fields{"peripheral": id}
	if err != nil {
		fields["error"] = err
		c.logger.WithFields(fields).Warn("Peripheral disconnected with error")
	} else {
		c.logger.WithFields(fields).Info("Peripheral disconnected")
	}
	c.disconnects.Emit(device.DisconnectEvent{ID: id, Err: device.NewHardwareError("disconnect", string(id), err)})
}
