package adapter

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/correlator"
	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/internal/eventchan"
)

// PeripheralManager is the peripheral-role adapter.
type PeripheralManager struct {
	stack  device.PeripheralManagerStack
	slots  *correlator.Correlator
	logger *logrus.Logger

	states *eventchan.Channel[device.State]
	closed atomic.Bool
}

// NewPeripheralManager creates a PeripheralManager and registers its
// callbacks with stack.
func NewPeripheralManager(stack device.PeripheralManagerStack, logger *logrus.Logger) *PeripheralManager {
	if logger == nil {
		logger = logrus.New()
	}
	m := &PeripheralManager{
		stack:  stack,
		slots:  correlator.New(logger),
		logger: logger,
		states: eventchan.New[device.State](),
	}
	stack.Register(device.PeripheralManagerCallbacks{
		OnStateUpdate:        m.handleStateUpdate,
		OnServiceAdded:       m.handleServiceAdded,
		OnAdvertisingStarted: m.handleAdvertisingStarted,
	})
	return m
}

// States returns the feed of manager state updates.
func (m *PeripheralManager) States() *eventchan.Channel[device.State] {
	return m.states
}

// AddService publishes svc and returns it as registered by the stack.
func (m *PeripheralManager) AddService(ctx context.Context, svc device.LocalService) (device.Service, error) {
	id := device.NormalizeUUID(svc.UUID)
	if id == "" {
		return device.Service{}, fmt.Errorf("invalid service UUID %q", svc.UUID)
	}
	return call[device.Service](ctx, m.slots, KindAddService.Key(id), func() error {
		return m.stack.AddService(svc)
	})
}

// RemoveService withdraws a published service.
func (m *PeripheralManager) RemoveService(serviceID string) error {
	return device.NewHardwareError("remove-service", serviceID, m.stack.RemoveService(serviceID))
}

// RemoveAllServices withdraws every published service.
func (m *PeripheralManager) RemoveAllServices() error {
	return device.NewHardwareError("remove-all-services", "", m.stack.RemoveAllServices())
}

// StartAdvertising starts advertising adv. Restarting with new data while a
// start is pending supersedes the earlier call.
func (m *PeripheralManager) StartAdvertising(ctx context.Context, adv device.AdvertisingData) error {
	_, err := call[struct{}](ctx, m.slots, KindStartAdvertising.Key(""), func() error {
		return m.stack.StartAdvertising(adv)
	})
	return err
}

// StopAdvertising stops advertising. A StartAdvertising still waiting for
// its result fails with device.ErrCancelled.
func (m *PeripheralManager) StopAdvertising() error {
	err := m.stack.StopAdvertising()
	if m.slots.Cancel(KindStartAdvertising.Key("")) {
		m.logger.Debug("Pending advertising start cancelled by stop")
	}
	return device.NewHardwareError("stop-advertising", "", err)
}

// Close fails pending operations and closes the state feed.
func (m *PeripheralManager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.slots.Close()
	m.states.Close()
}

func (m *PeripheralManager) handleStateUpdate(state device.State) {
	m.logger.WithField("state", state).Debug("Peripheral manager state updated")
	m.states.Emit(state)
}

func (m *PeripheralManager) handleServiceAdded(svc device.Service, err error) {
	resolve(m.slots, KindAddService.Key(device.NormalizeUUID(svc.UUID)), svc, err)
}

func (m *PeripheralManager) handleAdvertisingStarted(err error) {
	resolve(m.slots, KindStartAdvertising.Key(""), nil, err)
}
