package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// mockDevice overrides the ble.Device methods the stacks call. The embedded
// interface stays nil so an unexpected call panics.
type mockDevice struct {
	ble.Device
	mock.Mock
}

func (m *mockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return m.Called(ctx, allowDup, h).Error(0)
}

func (m *mockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a.String())
	cl, _ := args.Get(0).(ble.Client)
	return cl, args.Error(1)
}

func (m *mockDevice) AddService(svc *ble.Service) error {
	return m.Called(svc).Error(0)
}

func (m *mockDevice) SetServices(svcs []*ble.Service) error {
	return m.Called(svcs).Error(0)
}

func (m *mockDevice) RemoveAllServices() error {
	return m.Called().Error(0)
}

func (m *mockDevice) AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error {
	return m.Called(ctx, name, uuids).Error(0)
}

func (m *mockDevice) AdvertiseMfgData(ctx context.Context, id uint16, b []byte) error {
	return m.Called(ctx, id, b).Error(0)
}

func (m *mockDevice) Stop() error {
	return m.Called().Error(0)
}

type mockClient struct {
	ble.Client
	mock.Mock
	disconnected chan struct{}
}

func newMockClient() *mockClient {
	return &mockClient{disconnected: make(chan struct{})}
}

func (m *mockClient) Name() string { return "HeartRate1" }

func (m *mockClient) Disconnected() <-chan struct{} { return m.disconnected }

func (m *mockClient) CancelConnection() error {
	err := m.Called().Error(0)
	if err == nil {
		close(m.disconnected)
	}
	return err
}

func (m *mockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	svcs, _ := args.Get(0).([]*ble.Service)
	return svcs, args.Error(1)
}

func (m *mockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	chars, _ := args.Get(0).([]*ble.Characteristic)
	return chars, args.Error(1)
}

func (m *mockClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	args := m.Called(filter, c)
	descs, _ := args.Get(0).([]*ble.Descriptor)
	return descs, args.Error(1)
}

func (m *mockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *mockClient) ReadRSSI() int {
	return m.Called().Int(0)
}

// mockAdvertisement is a fixed ble.Advertisement.
type mockAdvertisement struct {
	ble.Advertisement
	name     string
	addr     string
	rssi     int
	services []ble.UUID
	mfg      []byte
}

func (a *mockAdvertisement) LocalName() string              { return a.name }
func (a *mockAdvertisement) ManufacturerData() []byte       { return a.mfg }
func (a *mockAdvertisement) ServiceData() []ble.ServiceData { return nil }
func (a *mockAdvertisement) Services() []ble.UUID           { return a.services }
func (a *mockAdvertisement) TxPowerLevel() int              { return txPowerUnavailable }
func (a *mockAdvertisement) Connectable() bool              { return true }
func (a *mockAdvertisement) RSSI() int                      { return a.rssi }
func (a *mockAdvertisement) Addr() ble.Addr                 { return ble.NewAddr(a.addr) }
