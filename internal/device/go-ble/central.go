package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/internal/groutine"
)

// Central is a device.CentralStack backed by a go-ble device. Blocking
// go-ble calls run on their own goroutines and report back through the
// registered callbacks.
type Central struct {
	dev      ble.Device
	logger   *logrus.Logger
	opts     Options
	dispatch *dispatcher

	cbMu sync.RWMutex
	cb   device.CentralCallbacks

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanDone   <-chan struct{}

	dialMu  sync.Mutex
	dials   map[device.PeripheralID]*dial
	clients *hashmap.Map[device.PeripheralID, *Client]
}

// dial is one connection attempt in flight. Whoever removes it from
// Central.dials reports its outcome.
type dial struct {
	cancel context.CancelFunc
}

// NewCentral creates a Central on the platform device from DeviceFactory.
func NewCentral(logger *logrus.Logger, opts *Options) (*Central, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return NewCentralWithDevice(dev, logger, opts), nil
}

// NewCentralWithDevice creates a Central on dev.
func NewCentralWithDevice(dev ble.Device, logger *logrus.Logger, opts *Options) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{
		dev:      dev,
		logger:   logger,
		opts:     orDefault(opts),
		dispatch: newDispatcher(logger),
		dials:    make(map[device.PeripheralID]*dial),
		clients:  hashmap.New[device.PeripheralID, *Client](),
	}
}

// Register installs the callback set. The device is usable once created,
// so a powered-on state update follows immediately.
func (c *Central) Register(cb device.CentralCallbacks) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
	c.postState(device.StatePoweredOn)
}

func (c *Central) callbacks() device.CentralCallbacks {
	c.cbMu.RLock()
	defer c.cbMu.RUnlock()
	return c.cb
}

func (c *Central) postState(state device.State) {
	c.dispatch.post(func() {
		if fn := c.callbacks().OnStateUpdate; fn != nil {
			fn(state)
		}
	})
}

// Scan starts discovery, replacing a scan in progress. Only advertisements
// listing one of services are reported when services is not empty.
func (c *Central) Scan(services []string, allowDuplicates bool) error {
	var filter []string
	if len(services) > 0 {
		normalized, err := device.ValidateUUID(services...)
		if err != nil {
			return err
		}
		filter = normalized
	}

	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	c.stopScanLocked()

	ctx, cancel := context.WithCancel(context.Background())
	c.scanCancel = cancel
	c.scanDone = groutine.GoDone(ctx, "ble-scan", func(ctx context.Context) {
		err := c.dev.Scan(ctx, allowDuplicates, func(adv ble.Advertisement) {
			d := toDiscovery(adv)
			if !advertises(d, filter) {
				return
			}
			c.dispatch.post(func() {
				if fn := c.callbacks().OnDiscover; fn != nil {
					fn(d)
				}
			})
		})
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		err = NormalizeError(err)
		c.logger.WithError(err).Warn("Scan stopped with error")
		if errors.Is(err, device.ErrBluetoothOff) {
			c.postState(device.StatePoweredOff)
		}
	})

	c.logger.WithFields(logrus.Fields{
		"services":         filter,
		"allow_duplicates": allowDuplicates,
	}).Debug("BLE scan started")
	return nil
}

// StopScan stops discovery. Discoveries of the stopped scan are delivered
// before it returns.
func (c *Central) StopScan() error {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	c.stopScanLocked()
	return nil
}

func (c *Central) stopScanLocked() {
	if c.scanCancel == nil {
		return
	}
	c.scanCancel()
	<-c.scanDone
	c.scanCancel, c.scanDone = nil, nil
	c.dispatch.flush()
}

// Connect dials id. A second Connect while a dial to id is in flight shares
// that dial; connecting to an already connected peripheral reports success.
func (c *Central) Connect(id device.PeripheralID) error {
	if _, ok := c.clients.Get(id); ok {
		c.postConnect(id)
		return nil
	}

	c.dialMu.Lock()
	if _, ok := c.dials[id]; ok {
		c.dialMu.Unlock()
		c.logger.WithField("peripheral", id).Debug("Dial already in flight")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	d := &dial{cancel: cancel}
	c.dials[id] = d
	c.dialMu.Unlock()

	groutine.Go(ctx, "ble-dial", func(ctx context.Context) {
		defer cancel()
		cl, err := c.dev.Dial(ctx, ble.NewAddr(string(id)))

		var client *Client
		if err == nil {
			client = newClient(id, cl, c.logger, c.dispatch)
		}
		if !c.finishDial(id, d, client) {
			// CancelConnection already reported this attempt.
			c.logger.WithField("peripheral", id).Debug("Cancelled dial finished")
			if client != nil {
				client.requested.Store(true)
				client.close()
				if err := cl.CancelConnection(); err != nil {
					c.logger.WithError(err).Debug("Failed to drop link of cancelled dial")
				}
			}
			return
		}

		if err != nil {
			err = NormalizeError(err)
			c.logger.WithFields(logrus.Fields{
				"peripheral": id,
				"error":      err,
			}).Debug("Dial failed")
			c.postConnectFail(id, err)
			return
		}

		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			c.monitor(client)
		})
		c.logger.WithField("peripheral", id).Info("BLE device connected")
		c.postConnect(id)
	})
	return nil
}

// finishDial removes d from the dials in flight and publishes client. It
// reports false if d was taken over by CancelConnection or Close.
func (c *Central) finishDial(id device.PeripheralID, d *dial, client *Client) bool {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()
	if c.dials[id] != d {
		return false
	}
	delete(c.dials, id)
	if client != nil {
		c.clients.Set(id, client)
	}
	return true
}

// takeDial removes the dial to id in flight, if any.
func (c *Central) takeDial(id device.PeripheralID) (*dial, bool) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()
	d, ok := c.dials[id]
	if ok {
		delete(c.dials, id)
	}
	return d, ok
}

func (c *Central) postConnectFail(id device.PeripheralID, err error) {
	c.dispatch.post(func() {
		if fn := c.callbacks().OnConnectFail; fn != nil {
			fn(id, err)
		}
	})
}

func (c *Central) postConnect(id device.PeripheralID) {
	c.dispatch.post(func() {
		if fn := c.callbacks().OnConnect; fn != nil {
			fn(id)
		}
	})
}

// monitor reports the end of client's link. A link that drops without a
// CancelConnection request is reported with ErrNotConnected.
func (c *Central) monitor(client *Client) {
	<-client.cl.Disconnected()
	c.clients.Del(client.id)
	client.close()

	var err error
	if !client.requested.Load() {
		err = device.ErrNotConnected
		c.logger.WithField("peripheral", client.id).Warn("BLE link lost")
	}
	c.dispatch.post(func() {
		if fn := c.callbacks().OnDisconnect; fn != nil {
			fn(client.id, err)
		}
	})
}

// CancelConnection aborts a dial in flight or disconnects a connected
// peripheral. An aborted dial is reported as failed with context.Canceled
// before CancelConnection returns; its late outcome is discarded.
func (c *Central) CancelConnection(id device.PeripheralID) error {
	if d, ok := c.takeDial(id); ok {
		d.cancel()
		c.postConnectFail(id, context.Canceled)
		c.dispatch.flush()
		return nil
	}
	client, ok := c.clients.Get(id)
	if !ok {
		return device.ErrNotConnected
	}
	client.requested.Store(true)
	return NormalizeError(client.cl.CancelConnection())
}

// Client returns the GATT client of a connected peripheral.
func (c *Central) Client(id device.PeripheralID) (device.GATTClient, error) {
	client, ok := c.clients.Get(id)
	if !ok {
		return nil, &device.NotFoundError{Resource: "peripheral", ID: string(id)}
	}
	return client, nil
}

// Close stops scanning, aborts dials, disconnects every peripheral and
// stops the device. Callbacks queued before Close are still delivered.
func (c *Central) Close() error {
	_ = c.StopScan()
	c.dialMu.Lock()
	dials := c.dials
	c.dials = make(map[device.PeripheralID]*dial)
	c.dialMu.Unlock()
	for id, d := range dials {
		d.cancel()
		c.postConnectFail(id, context.Canceled)
	}
	c.clients.Range(func(id device.PeripheralID, client *Client) bool {
		client.requested.Store(true)
		if err := client.cl.CancelConnection(); err != nil {
			c.logger.WithFields(logrus.Fields{
				"peripheral": id,
				"error":      err,
			}).Warn("Failed to disconnect on close")
		}
		return true
	})
	err := c.dev.Stop()
	c.dispatch.close()
	return NormalizeError(err)
}
