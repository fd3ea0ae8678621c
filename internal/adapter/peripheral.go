package adapter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/correlator"
	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/internal/eventchan"
)

// Peripheral is the adapter of one connected remote peripheral.
type Peripheral struct {
	client device.GATTClient
	id     device.PeripheralID
	slots  *correlator.Correlator
	logger *logrus.Logger

	nameMu sync.RWMutex
	name   string

	names         *eventchan.Channel[string]
	notifications *eventchan.Channel[device.Characteristic]
	closed        atomic.Bool
}

// NewPeripheral creates a Peripheral and registers its callbacks with client.
func NewPeripheral(client device.GATTClient, logger *logrus.Logger, opts *Options) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	o := orDefault(opts)
	p := &Peripheral{
		client:        client,
		id:            client.ID(),
		name:          client.Name(),
		slots:         correlator.New(logger),
		logger:        logger,
		names:         eventchan.New[string](),
		notifications: eventchan.New[device.Characteristic](eventchan.WithCapacity(o.NotificationBuffer)),
	}
	client.Register(device.GATTCallbacks{
		OnNameUpdate:          p.handleNameUpdate,
		OnServices:            p.handleServices,
		OnIncludedServices:    p.handleIncludedServices,
		OnCharacteristics:     p.handleCharacteristics,
		OnDescriptors:         p.handleDescriptors,
		OnValueUpdate:         p.handleValueUpdate,
		OnCharacteristicWrite: p.handleCharacteristicWrite,
		OnDescriptorWrite:     p.handleDescriptorWrite,
		OnNotifyState:         p.handleNotifyState,
		OnRSSI:                p.handleRSSI,
	})
	return p
}

func (p *Peripheral) ID() device.PeripheralID {
	return p.id
}

// Name returns the last known peripheral name.
func (p *Peripheral) Name() string {
	p.nameMu.RLock()
	defer p.nameMu.RUnlock()
	return p.name
}

// NameUpdates returns the feed of peripheral name changes.
func (p *Peripheral) NameUpdates() *eventchan.Channel[string] {
	return p.names
}

// Notifications returns the feed of characteristic value updates that did
// not answer a pending Read.
func (p *Peripheral) Notifications() *eventchan.Channel[device.Characteristic] {
	return p.notifications
}

// DiscoverServices discovers the peripheral's services. A nil filter
// discovers all of them. An empty result is not an error.
func (p *Peripheral) DiscoverServices(ctx context.Context, filter []string) ([]device.Service, error) {
	return call[[]device.Service](ctx, p.slots, KindDiscoverServices.Key(string(p.id)), func() error {
		return p.client.DiscoverServices(filter)
	})
}

// DiscoverIncludedServices discovers services included by serviceID.
func (p *Peripheral) DiscoverIncludedServices(ctx context.Context, serviceID string, filter []string) ([]device.Service, error) {
	return call[[]device.Service](ctx, p.slots, KindDiscoverIncludedServices.Key(serviceID), func() error {
		return p.client.DiscoverIncludedServices(serviceID, filter)
	})
}

// DiscoverCharacteristics discovers characteristics of serviceID.
func (p *Peripheral) DiscoverCharacteristics(ctx context.Context, serviceID string, filter []string) ([]device.Characteristic, error) {
	return call[[]device.Characteristic](ctx, p.slots, KindDiscoverCharacteristics.Key(serviceID), func() error {
		return p.client.DiscoverCharacteristics(serviceID, filter)
	})
}

// DiscoverDescriptors discovers descriptors of characteristicID.
func (p *Peripheral) DiscoverDescriptors(ctx context.Context, characteristicID string) ([]device.Descriptor, error) {
	return call[[]device.Descriptor](ctx, p.slots, KindDiscoverDescriptors.Key(characteristicID), func() error {
		return p.client.DiscoverDescriptors(characteristicID)
	})
}

// Read reads a characteristic and returns its updated snapshot.
func (p *Peripheral) Read(ctx context.Context, characteristicID string) (device.Characteristic, error) {
	return call[device.Characteristic](ctx, p.slots, KindRead.Key(characteristicID), func() error {
		return p.client.ReadValue(characteristicID)
	})
}

// Write writes a characteristic value. WithoutResponse writes are not
// acknowledged by the peripheral and return once the command is accepted.
func (p *Peripheral) Write(ctx context.Context, characteristicID string, data []byte, mode device.WriteMode) error {
	if mode == device.WithoutResponse {
		if p.closed.Load() {
			return device.ErrAdapterClosed
		}
		return device.NewHardwareError(KindWrite.Name(), characteristicID, p.client.WriteValue(characteristicID, data, mode))
	}
	_, err := call[struct{}](ctx, p.slots, KindWrite.Key(characteristicID), func() error {
		return p.client.WriteValue(characteristicID, data, mode)
	})
	return err
}

// WriteDescriptor writes a descriptor value.
func (p *Peripheral) WriteDescriptor(ctx context.Context, descriptorID string, data []byte) error {
	_, err := call[struct{}](ctx, p.slots, KindWriteDescriptor.Key(descriptorID), func() error {
		return p.client.WriteDescriptorValue(descriptorID, data)
	})
	return err
}

// SetNotify enables or disables value notifications for a characteristic.
// Updates are delivered on Notifications.
func (p *Peripheral) SetNotify(ctx context.Context, characteristicID string, enabled bool) error {
	_, err := call[bool](ctx, p.slots, KindSetNotify.Key(characteristicID), func() error {
		return p.client.SetNotify(characteristicID, enabled)
	})
	return err
}

// ReadRSSI reads the signal strength of the connection.
func (p *Peripheral) ReadRSSI(ctx context.Context) (int, error) {
	return call[int](ctx, p.slots, KindReadRSSI.Key(string(p.id)), p.client.ReadRSSI)
}

// Close fails pending operations and closes the feeds.
func (p *Peripheral) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.slots.Close()
	p.names.Close()
	p.notifications.Close()
}

func (p *Peripheral) handleNameUpdate(name string) {
	p.nameMu.Lock()
	p.name = name
	p.nameMu.Unlock()
	p.names.Emit(name)
}

func (p *Peripheral) handleServices(services []device.Service, err error) {
	resolve(p.slots, KindDiscoverServices.Key(string(p.id)), services, err)
}

func (p *Peripheral) handleIncludedServices(serviceID string, included []device.Service, err error) {
	resolve(p.slots, KindDiscoverIncludedServices.Key(serviceID), included, err)
}

func (p *Peripheral) handleCharacteristics(serviceID string, chars []device.Characteristic, err error) {
	resolve(p.slots, KindDiscoverCharacteristics.Key(serviceID), chars, err)
}

func (p *Peripheral) handleDescriptors(characteristicID string, descs []device.Descriptor, err error) {
	resolve(p.slots, KindDiscoverDescriptors.Key(characteristicID), descs, err)
}

// handleValueUpdate answers a pending Read if there is one, otherwise the
// update is a notification.
func (p *Peripheral) handleValueUpdate(char device.Characteristic, err error) {
	key := KindRead.Key(char.ID)
	if err != nil {
		resolve(p.slots, key, nil, err)
		return
	}
	if p.slots.TryResolve(key, char, nil) {
		return
	}
	if !p.notifications.Emit(char) {
		p.logger.WithFields(logrus.Fields{
			"peripheral":     p.id,
			"characteristic": char.ID,
		}).Debug("Notification after close dropped")
	}
}

func (p *Peripheral) handleCharacteristicWrite(characteristicID string, err error) {
	resolve(p.slots, KindWrite.Key(characteristicID), nil, err)
}

func (p *Peripheral) handleDescriptorWrite(descriptorID string, err error) {
	resolve(p.slots, KindWriteDescriptor.Key(descriptorID), nil, err)
}

func (p *Peripheral) handleNotifyState(characteristicID string, enabled bool, err error) {
	resolve(p.slots, KindSetNotify.Key(characteristicID), enabled, err)
}

func (p *Peripheral) handleRSSI(rssi int, err error) {
	resolve(p.slots, KindReadRSSI.Key(string(p.id)), rssi, err)
}
