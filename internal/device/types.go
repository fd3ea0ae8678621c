package device

import (
	"strings"
)

// PeripheralID identifies a remote peripheral (the address on go-ble).
type PeripheralID string

// State is the power/availability state reported by a manager.
type State int

const (
	StateUnknown State = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

func (s State) String() string {
	switch s {
	case StateResetting:
		return "resetting"
	case StateUnsupported:
		return "unsupported"
	case StateUnauthorized:
		return "unauthorized"
	case StatePoweredOff:
		return "powered_off"
	case StatePoweredOn:
		return "powered_on"
	default:
		return "unknown"
	}
}

// Advertisement is the decoded advertising payload of a discovered peripheral.
type Advertisement struct {
	LocalName        string
	ManufacturerData []byte
	ServiceData      map[string][]byte // normalized service UUID -> data
	Services         []string          // normalized service UUIDs
	TxPower          *int
	Connectable      bool
}

// Discovery is one scan result.
type Discovery struct {
	ID            PeripheralID
	Name          string
	RSSI          int
	Advertisement Advertisement
}

// DisconnectEvent reports the end of a connection. Err is nil for a
// requested disconnect and set when the link was lost or teardown failed.
type DisconnectEvent struct {
	ID  PeripheralID
	Err error
}

// Service is a discovered (or locally published) GATT service.
type Service struct {
	ID      string
	UUID    string
	Primary bool
}

// Characteristic is a snapshot of a GATT characteristic.
type Characteristic struct {
	ID         string
	ServiceID  string
	UUID       string
	Properties Property
	Value      []byte
}

// Descriptor is a snapshot of a GATT descriptor.
type Descriptor struct {
	ID               string
	CharacteristicID string
	UUID             string
	Value            []byte
}

// Property is the characteristic property bit set (Bluetooth Core Vol 3, Part G, 3.3.1.1).
type Property uint8

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropAuthenticatedSignedWrites
	PropExtendedProperties
)

var propertyNames = []struct {
	prop Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropAuthenticatedSignedWrites, "authenticated-signed-writes"},
	{PropExtendedProperties, "extended-properties"},
}

// Has reports whether every bit of q is set in p.
func (p Property) Has(q Property) bool {
	return p&q == q
}

func (p Property) String() string {
	names := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p.Has(pn.prop) {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseProperties parses a comma separated list such as "read,notify".
// Unknown names are ignored.
func ParseProperties(s string) Property {
	var p Property
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		for _, pn := range propertyNames {
			if pn.name == part {
				p |= pn.prop
			}
		}
	}
	return p
}

// WriteMode selects acknowledged or unacknowledged characteristic writes.
type WriteMode int

const (
	WithResponse WriteMode = iota
	WithoutResponse
)

func (m WriteMode) String() string {
	if m == WithoutResponse {
		return "without_response"
	}
	return "with_response"
}

// LocalCharacteristic is a characteristic published by the peripheral role.
type LocalCharacteristic struct {
	UUID       string
	Properties Property
	Value      []byte
}

// LocalService is a service published by the peripheral role.
type LocalService struct {
	UUID            string
	Primary         bool
	Characteristics []LocalCharacteristic
}

// AdvertisingData is the payload for StartAdvertising.
type AdvertisingData struct {
	LocalName        string
	ServiceUUIDs     []string
	ManufacturerID   uint16
	ManufacturerData []byte
}
