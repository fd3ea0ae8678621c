//go:build test

package main

import (
	"bytes"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/asyncble/internal/device"
	goble "github.com/srg/asyncble/internal/device/go-ble"
	"github.com/srg/asyncble/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent fake peripheral identification
const (
	TestDeviceAddress1 = "AA:BB:CC:DD:EE:01"
	TestDeviceAddress2 = "AA:BB:CC:DD:EE:02"
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

// CommandTestSuite runs commands against in-memory stacks. Connects succeed
// for peripherals added with ServePeripheral; scans report Discoveries.
// All cmd/asyncble test suites should embed this.
type CommandTestSuite struct {
	suite.Suite

	Central     *testutils.FakeCentralStack
	Peripheral  *testutils.FakePeripheralManagerStack
	Discoveries []device.Discovery

	// Stderr holds log and usage output of the last ExecuteCommand.
	Stderr *bytes.Buffer

	// AdvertiseErr fails the next advertising start when set.
	AdvertiseErr error

	origCentral    func(*logrus.Logger, *goble.Options) (centralBackend, error)
	origPeripheral func(*logrus.Logger, *goble.Options) (peripheralBackend, error)
}

func (s *CommandTestSuite) SetupSuite() {
	s.origCentral = newCentralBackend
	s.origPeripheral = newPeripheralBackend
}

func (s *CommandTestSuite) TearDownSuite() {
	newCentralBackend = s.origCentral
	newPeripheralBackend = s.origPeripheral
}

func (s *CommandTestSuite) SetupTest() {
	s.Discoveries = nil
	s.AdvertiseErr = nil

	s.Central = testutils.NewFakeCentralStack()
	s.Central.OnCommand(s.answerCentral)
	newCentralBackend = func(*logrus.Logger, *goble.Options) (centralBackend, error) {
		return s.Central, nil
	}

	s.Peripheral = testutils.NewFakePeripheralManagerStack()
	s.Peripheral.OnCommand(s.answerPeripheralManager)
	newPeripheralBackend = func(*logrus.Logger, *goble.Options) (peripheralBackend, error) {
		return s.Peripheral, nil
	}
}

// ServePeripheral makes address connectable and answered by profile.
func (s *CommandTestSuite) ServePeripheral(address, name string, profile *testutils.Profile) *testutils.FakeGATTClient {
	client := testutils.NewFakeGATTClient(peripheralID(address), name)
	profile.Serve(client)
	s.Central.AddClient(client)
	return client
}

// ExecuteCommand runs a cobra command with args, returns stdout and error.
// Flags start from their defaults on every run.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	resetFlags(cmd)
	buf := new(bytes.Buffer)
	s.Stderr = new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(s.Stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func (s *CommandTestSuite) answerCentral(cmd testutils.Command) {
	cb := s.Central.Callbacks()
	switch cmd.Op {
	case "connect":
		id := device.PeripheralID(cmd.Target)
		if s.Central.FakeClient(id) == nil {
			go cb.OnConnectFail(id, device.ErrNotConnected)
			return
		}
		go cb.OnConnect(id)
	case "scan":
		discoveries := s.Discoveries
		go func() {
			for _, d := range discoveries {
				cb.OnDiscover(d)
			}
		}()
	}
}

func (s *CommandTestSuite) answerPeripheralManager(cmd testutils.Command) {
	cb := s.Peripheral.Callbacks()
	switch cmd.Op {
	case "add-service":
		go cb.OnServiceAdded(device.Service{ID: cmd.Target, UUID: cmd.Target, Primary: true}, nil)
	case "start-advertising":
		err := s.AdvertiseErr
		go cb.OnAdvertisingStarted(err)
	}
}

func peripheralID(address string) device.PeripheralID {
	return device.PeripheralID(strings.ToLower(address))
}

// resetFlags restores every flag of the command tree to its default, so
// flag values do not leak between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
