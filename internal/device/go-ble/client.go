package goble

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/internal/eventchan"
	"github.com/srg/asyncble/internal/groutine"
)

// Client is a device.GATTClient over a connected go-ble client. Commands run
// one at a time on a per-client worker goroutine.
type Client struct {
	id       device.PeripheralID
	cl       ble.Client
	logger   *logrus.Logger
	dispatch *dispatcher

	cbMu sync.RWMutex
	cb   device.GATTCallbacks

	commands *eventchan.Channel[func()]
	done     <-chan struct{}

	// discovered GATT objects by entity ID
	services *hashmap.Map[string, *ble.Service]
	chars    *hashmap.Map[string, *ble.Characteristic]
	descs    *hashmap.Map[string, *ble.Descriptor]

	requested atomic.Bool // disconnect was asked for
}

func newClient(id device.PeripheralID, cl ble.Client, logger *logrus.Logger, dispatch *dispatcher) *Client {
	c := &Client{
		id:       id,
		cl:       cl,
		logger:   logger,
		dispatch: dispatch,
		commands: eventchan.New[func()](),
		services: hashmap.New[string, *ble.Service](),
		chars:    hashmap.New[string, *ble.Characteristic](),
		descs:    hashmap.New[string, *ble.Descriptor](),
	}
	c.done = groutine.GoDone(context.Background(), "ble-gatt-worker", func(ctx context.Context) {
		for cmd := range c.commands.All(ctx) {
			cmd()
		}
	})
	return c
}

func (c *Client) Register(cb device.GATTCallbacks) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.cb = cb
}

func (c *Client) callbacks() device.GATTCallbacks {
	c.cbMu.RLock()
	defer c.cbMu.RUnlock()
	return c.cb
}

func (c *Client) ID() device.PeripheralID { return c.id }
func (c *Client) Name() string            { return c.cl.Name() }

// enqueue runs cmd on the worker and posts the callback it returns.
func (c *Client) enqueue(cmd func() func(device.GATTCallbacks)) error {
	ok := c.commands.Emit(func() {
		deliver := cmd()
		if deliver == nil {
			return
		}
		c.dispatch.post(func() { deliver(c.callbacks()) })
	})
	if !ok {
		return device.ErrNotConnected
	}
	return nil
}

// close stops the worker after the queued commands ran.
func (c *Client) close() {
	c.commands.Close()
	<-c.done
}

func (c *Client) DiscoverServices(filter []string) error {
	uuids, err := parseUUIDs(filter)
	if err != nil {
		return err
	}
	return c.enqueue(func() func(device.GATTCallbacks) {
		svcs, err := c.cl.DiscoverServices(uuids)
		result := make([]device.Service, 0, len(svcs))
		for _, s := range svcs {
			svc := toService(s, true)
			c.services.Set(svc.ID, s)
			result = append(result, svc)
		}
		err = NormalizeError(err)
		return func(cb device.GATTCallbacks) {
			if cb.OnServices != nil {
				cb.OnServices(result, err)
			}
		}
	})
}

func (c *Client) DiscoverIncludedServices(serviceID string, filter []string) error {
	svc, ok := c.services.Get(serviceID)
	if !ok {
		return &device.NotFoundError{Resource: "service", ID: serviceID}
	}
	uuids, err := parseUUIDs(filter)
	if err != nil {
		return err
	}
	return c.enqueue(func() func(device.GATTCallbacks) {
		svcs, err := c.cl.DiscoverIncludedServices(uuids, svc)
		result := make([]device.Service, 0, len(svcs))
		for _, s := range svcs {
			inc := toService(s, false)
			c.services.Set(inc.ID, s)
			result = append(result, inc)
		}
		err = NormalizeError(err)
		return func(cb device.GATTCallbacks) {
			if cb.OnIncludedServices != nil {
				cb.OnIncludedServices(serviceID, result, err)
			}
		}
	})
}

func (c *Client) DiscoverCharacteristics(serviceID string, filter []string) error {
	svc, ok := c.services.Get(serviceID)
	if !ok {
		return &device.NotFoundError{Resource: "service", ID: serviceID}
	}
	uuids, err := parseUUIDs(filter)
	if err != nil {
		return err
	}
	return c.enqueue(func() func(device.GATTCallbacks) {
		chars, err := c.cl.DiscoverCharacteristics(uuids, svc)
		result := make([]device.Characteristic, 0, len(chars))
		for _, ch := range chars {
			char := toCharacteristic(serviceID, ch, nil)
			c.chars.Set(char.ID, ch)
			result = append(result, char)
		}
		err = NormalizeError(err)
		return func(cb device.GATTCallbacks) {
			if cb.OnCharacteristics != nil {
				cb.OnCharacteristics(serviceID, result, err)
			}
		}
	})
}

func (c *Client) DiscoverDescriptors(characteristicID string) error {
	char, ok := c.chars.Get(characteristicID)
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", ID: characteristicID}
	}
	return c.enqueue(func() func(device.GATTCallbacks) {
		descs, err := c.cl.DiscoverDescriptors(nil, char)
		result := make([]device.Descriptor, 0, len(descs))
		for _, d := range descs {
			desc := toDescriptor(characteristicID, d)
			c.descs.Set(desc.ID, d)
			result = append(result, desc)
		}
		err = NormalizeError(err)
		return func(cb device.GATTCallbacks) {
			if cb.OnDescriptors != nil {
				cb.OnDescriptors(characteristicID, result, err)
			}
		}
	})
}

func (c *Client) ReadValue(characteristicID string) error {
	char, ok := c.chars.Get(characteristicID)
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", ID: characteristicID}
	}
	serviceID := serviceOf(characteristicID)
	return c.enqueue(func() func(device.GATTCallbacks) {
		value, err := c.cl.ReadCharacteristic(char)
		snapshot := toCharacteristic(serviceID, char, value)
		err = NormalizeError(err)
		return func(cb device.GATTCallbacks) {
			if cb.OnValueUpdate != nil {
				cb.OnValueUpdate(snapshot, err)
			}
		}
	})
}

// WriteValue writes data. Unacknowledged writes produce no callback; their
// failures are logged.
func (c *Client) WriteValue(characteristicID string, data []byte, mode device.WriteMode) error {
	char, ok := c.chars.Get(characteristicID)
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", ID: characteristicID}
	}
	payload := append([]byte(nil), data...)
	return c.enqueue(func() func(device.GATTCallbacks) {
		err := NormalizeError(c.cl.WriteCharacteristic(char, payload, mode == device.WithoutResponse))
		if mode == device.WithoutResponse {
			if err != nil {
				c.logger.WithFields(logrus.Fields{
					"peripheral":     c.id,
					"characteristic": characteristicID,
					"error":          err,
				}).Warn("Write without response failed")
			}
			return nil
		}
		return func(cb device.GATTCallbacks) {
			if cb.OnCharacteristicWrite != nil {
				cb.OnCharacteristicWrite(characteristicID, err)
			}
		}
	})
}

func (c *Client) WriteDescriptorValue(descriptorID string, data []byte) error {
	desc, ok := c.descs.Get(descriptorID)
	if !ok {
		return &device.NotFoundError{Resource: "descriptor", ID: descriptorID}
	}
	payload := append([]byte(nil), data...)
	return c.enqueue(func() func(device.GATTCallbacks) {
		err := NormalizeError(c.cl.WriteDescriptor(desc, payload))
		return func(cb device.GATTCallbacks) {
			if cb.OnDescriptorWrite != nil {
				cb.OnDescriptorWrite(descriptorID, err)
			}
		}
	})
}

// SetNotify subscribes to or unsubscribes from value updates. Indications
// are used when the characteristic does not support notifications.
func (c *Client) SetNotify(characteristicID string, enabled bool) error {
	char, ok := c.chars.Get(characteristicID)
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", ID: characteristicID}
	}
	serviceID := serviceOf(characteristicID)
	props := device.Property(char.Property)
	indicate := !props.Has(device.PropNotify) && props.Has(device.PropIndicate)

	return c.enqueue(func() func(device.GATTCallbacks) {
		var err error
		if enabled {
			if char.CCCD == nil {
				// go-ble subscribes through the CCCD found by descriptor discovery
				_, err = c.cl.DiscoverDescriptors(nil, char)
			}
			if err == nil {
				err = c.cl.Subscribe(char, indicate, func(data []byte) {
					update := toCharacteristic(serviceID, char, append([]byte(nil), data...))
					c.dispatch.post(func() {
						if fn := c.callbacks().OnValueUpdate; fn != nil {
							fn(update, nil)
						}
					})
				})
			}
		} else {
			err = c.cl.Unsubscribe(char, indicate)
		}
		err = NormalizeError(err)
		return func(cb device.GATTCallbacks) {
			if cb.OnNotifyState != nil {
				cb.OnNotifyState(characteristicID, enabled, err)
			}
		}
	})
}

func (c *Client) ReadRSSI() error {
	return c.enqueue(func() func(device.GATTCallbacks) {
		rssi := c.cl.ReadRSSI()
		return func(cb device.GATTCallbacks) {
			if cb.OnRSSI != nil {
				cb.OnRSSI(rssi, nil)
			}
		}
	})
}

// serviceOf returns the service part of a characteristic ID.
func serviceOf(characteristicID string) string {
	svc, _, _ := strings.Cut(characteristicID, "/")
	return svc
}
