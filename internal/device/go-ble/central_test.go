package goble

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/adapter"
	"github.com/srg/asyncble/internal/device"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const waitTimeout = 2 * time.Second

// centralEvents collects CentralCallbacks invocations.
type centralEvents struct {
	states      chan device.State
	discoveries chan device.Discovery
	connects    chan device.PeripheralID
	fails       chan error
	disconnects chan device.DisconnectEvent
}

func newCentralEvents() *centralEvents {
	return &centralEvents{
		states:      make(chan device.State, 16),
		discoveries: make(chan device.Discovery, 16),
		connects:    make(chan device.PeripheralID, 16),
		fails:       make(chan error, 16),
		disconnects: make(chan device.DisconnectEvent, 16),
	}
}

func (e *centralEvents) callbacks() device.CentralCallbacks {
	return device.CentralCallbacks{
		OnStateUpdate: func(s device.State) { e.states <- s },
		OnDiscover:    func(d device.Discovery) { e.discoveries <- d },
		OnConnect:     func(id device.PeripheralID) { e.connects <- id },
		OnConnectFail: func(_ device.PeripheralID, err error) { e.fails <- err },
		OnDisconnect: func(id device.PeripheralID, err error) {
			e.disconnects <- device.DisconnectEvent{ID: id, Err: err}
		},
	}
}

func receive[T any](s *suite.Suite, ch <-chan T) T {
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		s.FailNow("callback not delivered")
		var zero T
		return zero
	}
}

type CentralStackTestSuite struct {
	suite.Suite
	logger  *logrus.Logger
	dev     *mockDevice
	events  *centralEvents
	central *Central
}

func (s *CentralStackTestSuite) SetupTest() {
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.DebugLevel)

	s.dev = &mockDevice{}
	s.events = newCentralEvents()
	s.central = NewCentralWithDevice(s.dev, s.logger, &Options{ConnectTimeout: time.Second})
	s.central.Register(s.events.callbacks())
	s.Equal(device.StatePoweredOn, receive(&s.Suite, s.events.states))
}

func (s *CentralStackTestSuite) TearDownTest() {
	s.dev.On("Stop").Return(nil).Maybe()
	s.NoError(s.central.Close())
}

func (s *CentralStackTestSuite) TestScanFiltersAndConverts() {
	// GOAL: Verify scan results are converted and filtered by advertised service
	//
	// TEST SCENARIO: scan with 180d filter → two advertisements → only the heart rate one reported → StopScan ends scan

	hr := &mockAdvertisement{name: "HeartRate1", addr: "aa:bb:cc:dd:ee:ff", rssi: -40, services: []ble.UUID{ble.UUID16(0x180d)}}
	other := &mockAdvertisement{name: "Other", addr: "11:22:33:44:55:66", rssi: -70}

	s.dev.On("Scan", mock.Anything, false, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		h := args.Get(2).(ble.AdvHandler)
		h(other)
		h(hr)
		<-ctx.Done()
	}).Return(context.Canceled).Once()

	s.Require().NoError(s.central.Scan([]string{"0000180D-0000-1000-8000-00805F9B34FB"}, false))

	d := receive(&s.Suite, s.events.discoveries)
	s.Equal(device.PeripheralID("aa:bb:cc:dd:ee:ff"), d.ID)
	s.Equal("HeartRate1", d.Name)
	s.Equal(-40, d.RSSI)
	s.Equal([]string{"180d"}, d.Advertisement.Services)
	s.Nil(d.Advertisement.TxPower)

	s.Require().NoError(s.central.StopScan())
	s.Empty(s.events.discoveries)
	s.dev.AssertExpectations(s.T())
}

func (s *CentralStackTestSuite) TestScanBluetoothOffReportsState() {
	s.dev.On("Scan", mock.Anything, true, mock.Anything).
		Return(errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")).Once()

	s.Require().NoError(s.central.Scan(nil, true))
	s.Equal(device.StatePoweredOff, receive(&s.Suite, s.events.states))
}

func (s *CentralStackTestSuite) TestScanRejectsMalformedFilter() {
	s.Error(s.central.Scan([]string{"xyz"}, false))
}

func (s *CentralStackTestSuite) TestConnectAndLinkLoss() {
	// GOAL: Verify a dial reports connect and an unrequested link drop reports ErrNotConnected
	//
	// TEST SCENARIO: Connect → dial succeeds → OnConnect → client available → link drops → OnDisconnect(ErrNotConnected)

	cl := newMockClient()
	s.dev.On("Dial", mock.Anything, "aa:bb:cc:dd:ee:ff").Return(cl, nil).Once()

	s.Require().NoError(s.central.Connect("aa:bb:cc:dd:ee:ff"))
	s.Equal(device.PeripheralID("aa:bb:cc:dd:ee:ff"), receive(&s.Suite, s.events.connects))

	client, err := s.central.Client("aa:bb:cc:dd:ee:ff")
	s.Require().NoError(err)
	s.Equal("HeartRate1", client.Name())

	close(cl.disconnected)
	ev := receive(&s.Suite, s.events.disconnects)
	s.ErrorIs(ev.Err, device.ErrNotConnected)

	_, err = s.central.Client("aa:bb:cc:dd:ee:ff")
	var notFound *device.NotFoundError
	s.ErrorAs(err, &notFound)
}

func (s *CentralStackTestSuite) TestRequestedDisconnectIsClean() {
	cl := newMockClient()
	cl.On("CancelConnection").Return(nil).Once()
	s.dev.On("Dial", mock.Anything, "p1").Return(cl, nil).Once()

	s.Require().NoError(s.central.Connect("p1"))
	receive(&s.Suite, s.events.connects)

	s.Require().NoError(s.central.CancelConnection("p1"))
	ev := receive(&s.Suite, s.events.disconnects)
	s.Equal(device.DisconnectEvent{ID: "p1"}, ev)
	s.ErrorIs(s.central.CancelConnection("p1"), device.ErrNotConnected)
}

func (s *CentralStackTestSuite) TestDialFailure() {
	s.dev.On("Dial", mock.Anything, "p1").Return(nil, errors.New("device not connected")).Once()

	s.Require().NoError(s.central.Connect("p1"))
	err := receive(&s.Suite, s.events.fails)
	s.ErrorIs(err, device.ErrNotConnected)
}

func (s *CentralStackTestSuite) TestCancelDialInFlight() {
	// GOAL: Verify CancelConnection aborts a dial in flight and a duplicate Connect shares it
	//
	// TEST SCENARIO: Connect twice (one dial) → CancelConnection → dial ctx cancelled → OnConnectFail

	s.dev.On("Dial", mock.Anything, "p1").Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, context.Canceled).Once()

	s.Require().NoError(s.central.Connect("p1"))
	s.Require().NoError(s.central.Connect("p1"))
	s.Eventually(func() bool { return s.dialing("p1") }, waitTimeout, 5*time.Millisecond)

	s.Require().NoError(s.central.CancelConnection("p1"))
	s.ErrorIs(receive(&s.Suite, s.events.fails), context.Canceled)
	s.dev.AssertNumberOfCalls(s.T(), "Dial", 1)
}

func (s *CentralStackTestSuite) TestCancelledDialLateFailureDiscarded() {
	// GOAL: Verify a cancelled dial is reported once, by CancelConnection, and its late result is dropped
	//
	// TEST SCENARIO: Connect → CancelConnection → OnConnectFail(context.Canceled) already delivered →
	// dial returns late with an error → no second OnConnectFail

	returned := make(chan struct{})
	s.dev.On("Dial", mock.Anything, "p1").Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
		time.Sleep(30 * time.Millisecond)
		close(returned)
	}).Return(nil, errors.New("connection aborted")).Once()

	s.Require().NoError(s.central.Connect("p1"))
	s.Eventually(func() bool { return s.dialing("p1") }, waitTimeout, 5*time.Millisecond)

	s.Require().NoError(s.central.CancelConnection("p1"))
	s.Require().Len(s.events.fails, 1, "cancellation MUST be reported before CancelConnection returns")
	s.ErrorIs(<-s.events.fails, context.Canceled)

	receive(&s.Suite, returned)
	s.Never(func() bool { return len(s.events.fails) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func (s *CentralStackTestSuite) TestRetryAfterAbandonedConnectGetsOwnDial() {
	// GOAL: Verify a Connect retried after an abandoned one starts a fresh dial and is resolved by it,
	// not by the late failure of the abandoned dial
	//
	// TEST SCENARIO: adapter Connect with short deadline → dial blocks → ErrCancelled → retry Connect →
	// abandoned dial returns late with context.Canceled → second dial succeeds → retry gets the peripheral

	const id = "aa:bb:cc:dd:ee:ff"
	cl := newMockClient()
	cl.On("CancelConnection").Return(nil).Maybe()
	s.dev.On("Dial", mock.Anything, id).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
		time.Sleep(50 * time.Millisecond)
	}).Return(nil, context.Canceled).Once()
	s.dev.On("Dial", mock.Anything, id).Return(cl, nil).Once()

	central := adapter.NewCentral(s.central, s.logger, nil)
	defer central.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := central.Connect(ctx, id)
	s.Require().ErrorIs(err, device.ErrCancelled)

	retryCtx, retryCancel := context.WithTimeout(context.Background(), waitTimeout)
	defer retryCancel()
	p, err := central.Connect(retryCtx, id)
	s.Require().NoError(err)
	s.Equal(device.PeripheralID(id), p.ID())
	s.dev.AssertNumberOfCalls(s.T(), "Dial", 2)
}

func (s *CentralStackTestSuite) TestStopScanDeliversQueuedDiscoveries() {
	// GOAL: Verify every discovery of a stopped scan is delivered before StopScan returns
	//
	// TEST SCENARIO: slow OnDiscover → scan reports five advertisements → StopScan → all five already delivered

	var delivered atomic.Int32
	s.central.Register(device.CentralCallbacks{
		OnDiscover: func(device.Discovery) {
			time.Sleep(5 * time.Millisecond)
			delivered.Add(1)
		},
	})

	reported := make(chan struct{})
	s.dev.On("Scan", mock.Anything, false, mock.Anything).Run(func(args mock.Arguments) {
		h := args.Get(2).(ble.AdvHandler)
		for i := 0; i < 5; i++ {
			h(&mockAdvertisement{addr: fmt.Sprintf("aa:bb:cc:dd:ee:%02x", i)})
		}
		close(reported)
		<-args.Get(0).(context.Context).Done()
	}).Return(context.Canceled).Once()

	s.Require().NoError(s.central.Scan(nil, false))
	receive(&s.Suite, reported)
	s.Require().NoError(s.central.StopScan())
	s.Equal(int32(5), delivered.Load())
}

// dialing reports whether a dial to id is in flight.
func (s *CentralStackTestSuite) dialing(id device.PeripheralID) bool {
	s.central.dialMu.Lock()
	defer s.central.dialMu.Unlock()
	_, ok := s.central.dials[id]
	return ok
}

func TestCentralStackTestSuite(t *testing.T) {
	suite.Run(t, new(CentralStackTestSuite))
}
