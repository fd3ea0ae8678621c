package device

// CentralCallbacks is the callback set of a central-role stack.
type CentralCallbacks struct {
	OnStateUpdate func(state State)
	OnDiscover    func(d Discovery)
	OnConnect     func(id PeripheralID)
	OnConnectFail func(id PeripheralID, err error)
	OnDisconnect  func(id PeripheralID, err error)
}

// CentralStack is the command side of a central-role stack.
type CentralStack interface {
	Register(cb CentralCallbacks)
	Scan(services []string, allowDuplicates bool) error
	StopScan() error
	Connect(id PeripheralID) error
	CancelConnection(id PeripheralID) error
	// Client returns the GATT client of a connected peripheral.
	Client(id PeripheralID) (GATTClient, error)
}

// GATTCallbacks is the callback set of one remote peripheral.
// OnValueUpdate fires both for read responses and for notifications.
type GATTCallbacks struct {
	OnNameUpdate          func(name string)
	OnServices            func(services []Service, err error)
	OnIncludedServices    func(serviceID string, included []Service, err error)
	OnCharacteristics     func(serviceID string, chars []Characteristic, err error)
	OnDescriptors         func(characteristicID string, descs []Descriptor, err error)
	OnValueUpdate         func(char Characteristic, err error)
	OnCharacteristicWrite func(characteristicID string, err error)
	OnDescriptorWrite     func(descriptorID string, err error)
	OnNotifyState         func(characteristicID string, enabled bool, err error)
	OnRSSI                func(rssi int, err error)
}

// GATTClient is the command side of one connected remote peripheral.
type GATTClient interface {
	Register(cb GATTCallbacks)
	ID() PeripheralID
	Name() string
	DiscoverServices(filter []string) error
	DiscoverIncludedServices(serviceID string, filter []string) error
	DiscoverCharacteristics(serviceID string, filter []string) error
	DiscoverDescriptors(characteristicID string) error
	ReadValue(characteristicID string) error
	WriteValue(characteristicID string, data []byte, mode WriteMode) error
	WriteDescriptorValue(descriptorID string, data []byte) error
	SetNotify(characteristicID string, enabled bool) error
	ReadRSSI() error
}

// PeripheralManagerCallbacks is the callback set of a peripheral-role stack.
type PeripheralManagerCallbacks struct {
	OnStateUpdate        func(state State)
	OnServiceAdded       func(svc Service, err error)
	OnAdvertisingStarted func(err error)
}

// PeripheralManagerStack is the command side of a peripheral-role stack.
type PeripheralManagerStack interface {
	Register(cb PeripheralManagerCallbacks)
	AddService(svc LocalService) error
	RemoveService(serviceID string) error
	RemoveAllServices() error
	StartAdvertising(adv AdvertisingData) error
	StopAdvertising() error
}
