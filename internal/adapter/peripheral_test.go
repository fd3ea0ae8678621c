//go:build test

package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/internal/eventchan"
	"github.com/srg/asyncble/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const heartRateProfile = `{
	"services": [
		{
			"uuid": "180D",
			"characteristics": [
				{
					"uuid": "2A37",
					"properties": "read,notify",
					"value": [80],
					"descriptors": [{"uuid": "2902", "value": [0, 0]}]
				},
				{ "uuid": "2A39", "properties": "write" }
			]
		},
		{
			"uuid": "0000180f-0000-1000-8000-00805f9b34fb",
			"characteristics": [
				{ "uuid": "2A19", "properties": "read", "value": [95] }
			]
		}
	],
	"rssi": -61
}`

type PeripheralTestSuite struct {
	suite.Suite
	helper     *testutils.TestHelper
	client     *testutils.FakeGATTClient
	peripheral *Peripheral
}

func (s *PeripheralTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.client = testutils.NewFakeGATTClient("P1", "HeartRate1")
	s.peripheral = NewPeripheral(s.client, s.helper.Logger, nil)
}

func (s *PeripheralTestSuite) TearDownTest() {
	s.peripheral.Close()
}

func (s *PeripheralTestSuite) TestDiscoverServicesIgnoresStrayDuplicate() {
	// GOAL: Verify a stray duplicate callback of a completed discovery has no effect on the next one
	//
	// TEST SCENARIO: discover → [S1, S2] delivered → caller gets [S1, S2] → stray [S1, S2] arrives →
	// discover again → own callback [S3] → caller gets [S3]

	s1 := device.Service{ID: "s1", UUID: "180d", Primary: true}
	s2 := device.Service{ID: "s2", UUID: "180f", Primary: true}
	s3 := device.Service{ID: "s3", UUID: "1800", Primary: true}

	res := async(func() ([]device.Service, error) { return s.peripheral.DiscoverServices(context.Background(), nil) })
	s.client.ExpectCommand(s.T(), "discover-services")
	s.client.Callbacks().OnServices([]device.Service{s1, s2}, nil)

	o := await(s.T(), res)
	s.Require().NoError(o.err)
	s.Equal([]device.Service{s1, s2}, o.v)

	s.client.Callbacks().OnServices([]device.Service{s1, s2}, nil)
	s.Contains(s.helper.Output.String(), "No pending operation for callback")

	res = async(func() ([]device.Service, error) { return s.peripheral.DiscoverServices(context.Background(), nil) })
	s.client.ExpectCommand(s.T(), "discover-services")
	requirePending(s.T(), res)
	s.client.Callbacks().OnServices([]device.Service{s3}, nil)

	o = await(s.T(), res)
	s.Require().NoError(o.err)
	s.Equal([]device.Service{s3}, o.v)
}

func (s *PeripheralTestSuite) TestEmptyDiscoveryIsSuccess() {
	// GOAL: Verify an empty discovery result resolves without error
	//
	// TEST SCENARIO: discover characteristics → nil list delivered → no error, empty result

	res := async(func() ([]device.Characteristic, error) {
		return s.peripheral.DiscoverCharacteristics(context.Background(), "180d", nil)
	})
	s.client.ExpectCommand(s.T(), "discover-characteristics")
	s.client.Callbacks().OnCharacteristics("180d", nil, nil)

	o := await(s.T(), res)
	s.NoError(o.err)
	s.Empty(o.v)
}

func (s *PeripheralTestSuite) TestDuplicateReadRejected() {
	// GOAL: Verify a second read of the same characteristic is rejected while the first is pending
	//
	// TEST SCENARIO: read pending → read again → ErrDuplicateKey without a command → first still resolves

	first := async(func() (device.Characteristic, error) { return s.peripheral.Read(context.Background(), "180d/2a37") })
	s.client.ExpectCommand(s.T(), "read")

	_, err := s.peripheral.Read(context.Background(), "180d/2a37")
	s.ErrorIs(err, device.ErrDuplicateKey)
	s.client.ExpectNoCommand(s.T())

	s.client.Callbacks().OnValueUpdate(device.Characteristic{ID: "180d/2a37", Value: []byte{72}}, nil)
	o := await(s.T(), first)
	s.Require().NoError(o.err)
	s.Equal([]byte{72}, o.v.Value)
}

func (s *PeripheralTestSuite) TestValueUpdateRouting() {
	// GOAL: Verify a value update answers a pending read or becomes a notification, never both
	//
	// TEST SCENARIO: update with no read → notification; read pending → update → read resolved, no notification

	update := device.Characteristic{ID: "180d/2a37", UUID: "2a37", Value: []byte{80}}
	s.client.Callbacks().OnValueUpdate(update, nil)

	n, err := s.peripheral.Notifications().Next(context.Background())
	s.Require().NoError(err)
	s.Equal(update, n)

	res := async(func() (device.Characteristic, error) { return s.peripheral.Read(context.Background(), "180d/2a37") })
	s.client.ExpectCommand(s.T(), "read")
	update.Value = []byte{81}
	s.client.Callbacks().OnValueUpdate(update, nil)

	o := await(s.T(), res)
	s.Require().NoError(o.err)
	s.Equal([]byte{81}, o.v.Value)
	s.Equal(0, s.peripheral.Notifications().Len())
}

func (s *PeripheralTestSuite) TestReadFailureIsHardwareError() {
	// GOAL: Verify a collaborator read error reaches the caller verbatim
	//
	// TEST SCENARIO: read → error callback → HardwareError wrapping the collaborator error

	insufficientAuth := errors.New("insufficient authentication")
	res := async(func() (device.Characteristic, error) { return s.peripheral.Read(context.Background(), "180d/2a37") })
	s.client.ExpectCommand(s.T(), "read")
	s.client.Callbacks().OnValueUpdate(device.Characteristic{ID: "180d/2a37"}, insufficientAuth)

	o := await(s.T(), res)
	s.ErrorIs(o.err, insufficientAuth)
	var hwErr *device.HardwareError
	s.Require().ErrorAs(o.err, &hwErr)
	s.Equal("read", hwErr.Op)
	s.Equal("180d/2a37", hwErr.Target)
}

func (s *PeripheralTestSuite) TestWriteModes() {
	// GOAL: Verify acknowledged writes wait for the callback and unacknowledged ones do not
	//
	// TEST SCENARIO: write with response → pending until ack; write without response → returns after command

	res := asyncErr(func() error {
		return s.peripheral.Write(context.Background(), "180d/2a39", []byte{1}, device.WithResponse)
	})
	cmd := s.client.ExpectCommand(s.T(), "write")
	s.Equal([]byte{1}, cmd.Args[0])
	requirePending(s.T(), res)
	s.client.Callbacks().OnCharacteristicWrite("180d/2a39", nil)
	s.NoError(await(s.T(), res).err)

	s.NoError(s.peripheral.Write(context.Background(), "180d/2a39", []byte{2}, device.WithoutResponse))
	cmd = s.client.ExpectCommand(s.T(), "write")
	s.Equal(device.WithoutResponse, cmd.Args[1])

	s.client.FailOn("write", errors.New("not permitted"))
	err := s.peripheral.Write(context.Background(), "180d/2a39", []byte{3}, device.WithoutResponse)
	s.EqualError(err, `write "180d/2a39" failed: not permitted`)
}

func (s *PeripheralTestSuite) TestNameUpdates() {
	s.Equal("HeartRate1", s.peripheral.Name())
	s.client.Callbacks().OnNameUpdate("HeartRate2")

	name, err := s.peripheral.NameUpdates().Next(context.Background())
	s.Require().NoError(err)
	s.Equal("HeartRate2", name)
	s.Equal("HeartRate2", s.peripheral.Name())
}

func (s *PeripheralTestSuite) TestProfileWalk() {
	// GOAL: Verify the full GATT walk against a peripheral that answers asynchronously
	//
	// TEST SCENARIO: serve profile → discover services, characteristics, descriptors → read, write,
	// subscribe, notify, rssi

	profile := testutils.ProfileFromJSON(heartRateProfile)
	profile.Serve(s.client)
	ctx := context.Background()

	services, err := s.peripheral.DiscoverServices(ctx, nil)
	s.Require().NoError(err)
	s.Require().Len(services, 2)
	s.Equal("180d", services[0].UUID)
	s.Equal("180f", services[1].UUID)

	filtered, err := s.peripheral.DiscoverServices(ctx, []string{"0x180F"})
	s.Require().NoError(err)
	s.Require().Len(filtered, 1)
	s.Equal("180f", filtered[0].ID)

	included, err := s.peripheral.DiscoverIncludedServices(ctx, "180d", nil)
	s.NoError(err)
	s.Empty(included)

	chars, err := s.peripheral.DiscoverCharacteristics(ctx, "180d", nil)
	s.Require().NoError(err)
	s.Require().Len(chars, 2)
	s.Equal("180d/2a37", chars[0].ID)
	s.True(chars[0].Properties.Has(device.PropRead | device.PropNotify))

	_, err = s.peripheral.DiscoverCharacteristics(ctx, "ffff", nil)
	var notFound *device.NotFoundError
	s.ErrorAs(err, &notFound)

	descs, err := s.peripheral.DiscoverDescriptors(ctx, "180d/2a37")
	s.Require().NoError(err)
	s.Require().Len(descs, 1)
	s.Equal("180d/2a37/2902", descs[0].ID)

	battery, err := s.peripheral.Read(ctx, "180f/2a19")
	s.Require().NoError(err)
	s.Equal([]byte{95}, battery.Value)

	s.Require().NoError(s.peripheral.Write(ctx, "180d/2a39", []byte{1}, device.WithResponse))
	s.Equal([]byte{1}, profile.Value("180d/2a39"))
	s.Require().NoError(s.peripheral.WriteDescriptor(ctx, "180d/2a37/2902", []byte{1, 0}))
	s.Equal([]byte{1, 0}, profile.Value("180d/2a37/2902"))

	s.Require().NoError(s.peripheral.SetNotify(ctx, "180d/2a37", true))
	profile.Notify(s.client, "180d/2a37", []byte{90})
	n, err := s.peripheral.Notifications().Next(ctx)
	s.Require().NoError(err)
	s.Equal([]byte{90}, n.Value)

	rssi, err := s.peripheral.ReadRSSI(ctx)
	s.Require().NoError(err)
	s.Equal(-61, rssi)
}

func (s *PeripheralTestSuite) TestBoundedNotifications() {
	// GOAL: Verify the notification buffer drops the oldest update when bounded
	//
	// TEST SCENARIO: capacity 2 → three updates → oldest dropped

	p := NewPeripheral(testutils.NewFakeGATTClient("P2", ""), s.helper.Logger, &Options{NotificationBuffer: 2})
	defer p.Close()
	for i := byte(1); i <= 3; i++ {
		p.handleValueUpdate(device.Characteristic{ID: "c", Value: []byte{i}}, nil)
	}
	s.Equal(uint64(1), p.Notifications().Dropped())
	n, err := p.Notifications().Next(context.Background())
	s.Require().NoError(err)
	s.Equal([]byte{2}, n.Value)
}

func (s *PeripheralTestSuite) TestCloseFailsPending() {
	// GOAL: Verify Close fails operations in flight and closes feeds after draining
	//
	// TEST SCENARIO: pending rssi + queued notification → Close → ErrAdapterClosed; notification still drained

	res := async(func() (int, error) { return s.peripheral.ReadRSSI(context.Background()) })
	s.client.ExpectCommand(s.T(), "read-rssi")
	s.client.Callbacks().OnValueUpdate(device.Characteristic{ID: "c"}, nil)

	s.peripheral.Close()
	s.ErrorIs(await(s.T(), res).err, device.ErrAdapterClosed)

	_, err := s.peripheral.Notifications().Next(context.Background())
	s.NoError(err)
	_, err = s.peripheral.Notifications().Next(context.Background())
	s.ErrorIs(err, eventchan.ErrClosed)

	_, err = s.peripheral.Read(context.Background(), "c")
	s.ErrorIs(err, device.ErrAdapterClosed)
	s.ErrorIs(s.peripheral.Write(context.Background(), "c", nil, device.WithoutResponse), device.ErrAdapterClosed)
}

func TestPeripheralTestSuite(t *testing.T) {
	suite.Run(t, new(PeripheralTestSuite))
}
