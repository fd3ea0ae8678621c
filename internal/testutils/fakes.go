//go:build test

package testutils

import (
	"sync"
	"time"

	"github.com/srg/asyncble/internal/device"
	"github.com/stretchr/testify/require"
)

// Command is one command issued to a fake stack.
type Command struct {
	Op     string
	Target string
	Args   []any
}

// recorder captures commands, injects synchronous errors and runs a hook
// after every accepted command.
type recorder struct {
	mu       sync.Mutex
	commands chan Command
	errs     map[string]error
	hook     func(Command)
	closed   bool
}

func newRecorder() *recorder {
	return &recorder{
		commands: make(chan Command, 256),
		errs:     make(map[string]error),
	}
}

func (r *recorder) record(op, target string, args ...any) error {
	cmd := Command{Op: op, Target: target, Args: args}

	r.mu.Lock()
	err := r.errs[op]
	hook := r.hook
	r.mu.Unlock()

	r.commands <- cmd
	if err == nil && hook != nil {
		hook(cmd)
	}
	return err
}

// FailOn makes every later op command fail synchronously with err.
// A nil err clears the failure.
func (r *recorder) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.errs, op)
		return
	}
	r.errs[op] = err
}

// OnCommand installs a hook invoked after each accepted command.
func (r *recorder) OnCommand(hook func(Command)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

// Close marks the fake closed. It is not recorded as a command.
func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// ExpectCommand waits for the next command and requires it to be op.
func (r *recorder) ExpectCommand(t require.TestingT, op string) Command {
	select {
	case cmd := <-r.commands:
		require.Equal(t, op, cmd.Op, "unexpected command %+v", cmd)
		return cmd
	case <-time.After(time.Second):
		require.FailNow(t, "command not issued", "expected %q", op)
		return Command{}
	}
}

// ExpectNoCommand requires that no command is pending.
func (r *recorder) ExpectNoCommand(t require.TestingT) {
	select {
	case cmd := <-r.commands:
		require.FailNow(t, "unexpected command", "%+v", cmd)
	default:
	}
}

// FakeCentralStack is an in-memory device.CentralStack.
type FakeCentralStack struct {
	*recorder

	cbMu      sync.Mutex
	callbacks device.CentralCallbacks
	clients   map[device.PeripheralID]*FakeGATTClient
}

func NewFakeCentralStack() *FakeCentralStack {
	return &FakeCentralStack{
		recorder: newRecorder(),
		clients:  make(map[device.PeripheralID]*FakeGATTClient),
	}
}

func (f *FakeCentralStack) Register(cb device.CentralCallbacks) {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	f.callbacks = cb
}

// Callbacks returns the callback set registered by the adapter.
func (f *FakeCentralStack) Callbacks() device.CentralCallbacks {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	return f.callbacks
}

func (f *FakeCentralStack) Scan(services []string, allowDuplicates bool) error {
	return f.record("scan", "", services, allowDuplicates)
}

func (f *FakeCentralStack) StopScan() error {
	return f.record("stop-scan", "")
}

func (f *FakeCentralStack) Connect(id device.PeripheralID) error {
	return f.record("connect", string(id))
}

func (f *FakeCentralStack) CancelConnection(id device.PeripheralID) error {
	return f.record("cancel-connection", string(id))
}

// AddClient makes client available once its peripheral is connected.
func (f *FakeCentralStack) AddClient(client *FakeGATTClient) {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	f.clients[client.ID()] = client
}

// Client returns the registered client of id, creating an empty one on demand.
func (f *FakeCentralStack) Client(id device.PeripheralID) (device.GATTClient, error) {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		c = NewFakeGATTClient(id, "")
		f.clients[id] = c
	}
	return c, nil
}

// FakeClient returns the fake client of id, if any.
func (f *FakeCentralStack) FakeClient(id device.PeripheralID) *FakeGATTClient {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	return f.clients[id]
}

// FakeGATTClient is an in-memory device.GATTClient.
type FakeGATTClient struct {
	*recorder

	id   device.PeripheralID
	name string

	cbMu      sync.Mutex
	callbacks device.GATTCallbacks
}

func NewFakeGATTClient(id device.PeripheralID, name string) *FakeGATTClient {
	return &FakeGATTClient{recorder: newRecorder(), id: id, name: name}
}

func (f *FakeGATTClient) Register(cb device.GATTCallbacks) {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	f.callbacks = cb
}

func (f *FakeGATTClient) Callbacks() device.GATTCallbacks {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	return f.callbacks
}

func (f *FakeGATTClient) ID() device.PeripheralID { return f.id }
func (f *FakeGATTClient) Name() string            { return f.name }

func (f *FakeGATTClient) DiscoverServices(filter []string) error {
	return f.record("discover-services", string(f.id), filter)
}

func (f *FakeGATTClient) DiscoverIncludedServices(serviceID string, filter []string) error {
	return f.record("discover-included-services", serviceID, filter)
}

func (f *FakeGATTClient) DiscoverCharacteristics(serviceID string, filter []string) error {
	return f.record("discover-characteristics", serviceID, filter)
}

func (f *FakeGATTClient) DiscoverDescriptors(characteristicID string) error {
	return f.record("discover-descriptors", characteristicID)
}

func (f *FakeGATTClient) ReadValue(characteristicID string) error {
	return f.record("read", characteristicID)
}

func (f *FakeGATTClient) WriteValue(characteristicID string, data []byte, mode device.WriteMode) error {
	return f.record("write", characteristicID, data, mode)
}

func (f *FakeGATTClient) WriteDescriptorValue(descriptorID string, data []byte) error {
	return f.record("write-descriptor", descriptorID, data)
}

func (f *FakeGATTClient) SetNotify(characteristicID string, enabled bool) error {
	return f.record("set-notify", characteristicID, enabled)
}

func (f *FakeGATTClient) ReadRSSI() error {
	return f.record("read-rssi", string(f.id))
}

// FakePeripheralManagerStack is an in-memory device.PeripheralManagerStack.
type FakePeripheralManagerStack struct {
	*recorder

	cbMu      sync.Mutex
	callbacks device.PeripheralManagerCallbacks
}

func NewFakePeripheralManagerStack() *FakePeripheralManagerStack {
	return &FakePeripheralManagerStack{recorder: newRecorder()}
}

func (f *FakePeripheralManagerStack) Register(cb device.PeripheralManagerCallbacks) {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	f.callbacks = cb
}

func (f *FakePeripheralManagerStack) Callbacks() device.PeripheralManagerCallbacks {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	return f.callbacks
}

func (f *FakePeripheralManagerStack) AddService(svc device.LocalService) error {
	return f.record("add-service", device.NormalizeUUID(svc.UUID), svc)
}

func (f *FakePeripheralManagerStack) RemoveService(serviceID string) error {
	return f.record("remove-service", serviceID)
}

func (f *FakePeripheralManagerStack) RemoveAllServices() error {
	return f.record("remove-all-services", "")
}

func (f *FakePeripheralManagerStack) StartAdvertising(adv device.AdvertisingData) error {
	return f.record("start-advertising", "", adv)
}

func (f *FakePeripheralManagerStack) StopAdvertising() error {
	return f.record("stop-advertising", "")
}
