package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/internal/groutine"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// PeripheralManager is a device.PeripheralManagerStack backed by the
// go-ble GATT server.
type PeripheralManager struct {
	dev      ble.Device
	logger   *logrus.Logger
	opts     Options
	dispatch *dispatcher

	cbMu sync.RWMutex
	cb   device.PeripheralManagerCallbacks

	svcMu    sync.Mutex
	services *orderedmap.OrderedMap[string, *ble.Service] // published, in publication order
	values   *hashmap.Map[string, []byte]                 // local characteristic ID -> value

	advMu     sync.Mutex
	advCancel context.CancelFunc
	advDone   <-chan struct{}
	advGen    atomic.Uint64 // bumped by every start
}

// NewPeripheralManager creates a PeripheralManager on the platform device
// from DeviceFactory.
func NewPeripheralManager(logger *logrus.Logger, opts *Options) (*PeripheralManager, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return NewPeripheralManagerWithDevice(dev, logger, opts), nil
}

// NewPeripheralManagerWithDevice creates a PeripheralManager on dev.
func NewPeripheralManagerWithDevice(dev ble.Device, logger *logrus.Logger, opts *Options) *PeripheralManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PeripheralManager{
		dev:      dev,
		logger:   logger,
		opts:     orDefault(opts),
		dispatch: newDispatcher(logger),
		services: orderedmap.New[string, *ble.Service](),
		values:   hashmap.New[string, []byte](),
	}
}

func (m *PeripheralManager) Register(cb device.PeripheralManagerCallbacks) {
	m.cbMu.Lock()
	m.cb = cb
	m.cbMu.Unlock()
	m.dispatch.post(func() {
		if fn := m.callbacks().OnStateUpdate; fn != nil {
			fn(device.StatePoweredOn)
		}
	})
}

func (m *PeripheralManager) callbacks() device.PeripheralManagerCallbacks {
	m.cbMu.RLock()
	defer m.cbMu.RUnlock()
	return m.cb
}

// AddService publishes svc on the GATT server. Characteristic values are
// served from memory and updated by remote writes.
func (m *PeripheralManager) AddService(svc device.LocalService) error {
	id := device.NormalizeUUID(svc.UUID)
	if id == "" {
		return fmt.Errorf("invalid service UUID %q", svc.UUID)
	}
	u, err := ble.Parse(id)
	if err != nil {
		return err
	}
	bs := ble.NewService(u)
	for _, lc := range svc.Characteristics {
		if err := m.addCharacteristic(bs, id, lc); err != nil {
			return err
		}
	}

	groutine.Go(context.Background(), "ble-add-service", func(context.Context) {
		m.svcMu.Lock()
		err := NormalizeError(m.dev.AddService(bs))
		if err == nil {
			m.services.Set(id, bs)
		}
		m.svcMu.Unlock()

		published := device.Service{ID: id, UUID: id, Primary: svc.Primary}
		m.dispatch.post(func() {
			if fn := m.callbacks().OnServiceAdded; fn != nil {
				fn(published, err)
			}
		})
	})
	return nil
}

func (m *PeripheralManager) addCharacteristic(bs *ble.Service, serviceID string, lc device.LocalCharacteristic) error {
	charUUID := device.NormalizeUUID(lc.UUID)
	if charUUID == "" {
		return fmt.Errorf("invalid characteristic UUID %q", lc.UUID)
	}
	u, err := ble.Parse(charUUID)
	if err != nil {
		return err
	}
	charID := serviceID + "/" + charUUID
	m.values.Set(charID, append([]byte(nil), lc.Value...))

	c := bs.NewCharacteristic(u)
	if lc.Properties.Has(device.PropRead) {
		c.HandleRead(ble.ReadHandlerFunc(func(_ ble.Request, rsp ble.ResponseWriter) {
			value, _ := m.values.Get(charID)
			if _, err := rsp.Write(value); err != nil {
				m.logger.WithError(err).Debug("Read response failed")
			}
		}))
	}
	if lc.Properties.Has(device.PropWrite) || lc.Properties.Has(device.PropWriteWithoutResponse) {
		c.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, _ ble.ResponseWriter) {
			m.values.Set(charID, append([]byte(nil), req.Data()...))
		}))
	}
	if lc.Properties.Has(device.PropNotify) || lc.Properties.Has(device.PropIndicate) {
		c.HandleNotify(ble.NotifyHandlerFunc(func(_ ble.Request, n ble.Notifier) {
			<-n.Context().Done()
		}))
	}
	c.Property = ble.Property(lc.Properties)
	return nil
}

// RemoveService withdraws a published service by republishing the rest.
func (m *PeripheralManager) RemoveService(serviceID string) error {
	m.svcMu.Lock()
	defer m.svcMu.Unlock()
	if _, ok := m.services.Delete(serviceID); !ok {
		return &device.NotFoundError{Resource: "service", ID: serviceID}
	}
	remaining := make([]*ble.Service, 0, m.services.Len())
	for pair := m.services.Oldest(); pair != nil; pair = pair.Next() {
		remaining = append(remaining, pair.Value)
	}
	return NormalizeError(m.dev.SetServices(remaining))
}

func (m *PeripheralManager) RemoveAllServices() error {
	m.svcMu.Lock()
	defer m.svcMu.Unlock()
	m.services = orderedmap.New[string, *ble.Service]()
	return NormalizeError(m.dev.RemoveAllServices())
}

// StartAdvertising replaces the current advertisement with adv. go-ble
// advertises until cancelled, so the start is reported once advertising
// runs for AdvertiseSettle without failing. A start that is stopped or
// replaced before it settles is not reported.
func (m *PeripheralManager) StartAdvertising(adv device.AdvertisingData) error {
	uuids, err := parseUUIDs(adv.ServiceUUIDs)
	if err != nil {
		return err
	}

	m.advMu.Lock()
	defer m.advMu.Unlock()
	m.stopAdvertisingLocked()

	gen := m.advGen.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	m.advCancel = cancel
	m.advDone = groutine.GoDone(ctx, "ble-advertise", func(ctx context.Context) {
		result := make(chan error, 1)
		groutine.Go(ctx, "ble-advertise-run", func(ctx context.Context) {
			if len(adv.ManufacturerData) > 0 && adv.LocalName == "" && len(uuids) == 0 {
				result <- m.dev.AdvertiseMfgData(ctx, adv.ManufacturerID, adv.ManufacturerData)
				return
			}
			result <- m.dev.AdvertiseNameAndServices(ctx, adv.LocalName, uuids...)
		})

		settle := time.NewTimer(m.opts.AdvertiseSettle)
		defer settle.Stop()

		var started error
		select {
		case err := <-result:
			if errors.Is(err, context.Canceled) {
				return
			}
			if err == nil {
				// returned without running; treat as an immediate stop
				err = errors.New("advertising stopped immediately")
			}
			started = NormalizeError(err)
		case <-settle.C:
		case <-ctx.Done():
			<-result
			return
		}

		m.dispatch.post(func() {
			if m.advGen.Load() != gen {
				m.logger.Debug("Result of superseded advertising start dropped")
				return
			}
			if fn := m.callbacks().OnAdvertisingStarted; fn != nil {
				fn(started)
			}
		})
		if started == nil {
			if err := <-result; err != nil && !errors.Is(err, context.Canceled) {
				m.logger.WithError(NormalizeError(err)).Warn("Advertising stopped with error")
			}
		}
	})
	return nil
}

// StopAdvertising stops advertising. A start result already reported is
// delivered before it returns.
func (m *PeripheralManager) StopAdvertising() error {
	m.advMu.Lock()
	defer m.advMu.Unlock()
	m.stopAdvertisingLocked()
	m.dispatch.flush()
	return nil
}

func (m *PeripheralManager) stopAdvertisingLocked() {
	if m.advCancel == nil {
		return
	}
	m.advCancel()
	<-m.advDone
	m.advCancel, m.advDone = nil, nil
}

// Close stops advertising and the device.
func (m *PeripheralManager) Close() error {
	_ = m.StopAdvertising()
	err := m.dev.Stop()
	m.dispatch.close()
	return NormalizeError(err)
}
