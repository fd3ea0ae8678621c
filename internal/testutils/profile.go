//go:build test

package testutils

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/srg/asyncble/internal/device"
)

type DescriptorConfig struct {
	UUID  string `json:"uuid"`
	Value []byte `json:"value,omitempty"`
}

type CharacteristicConfig struct {
	UUID        string             `json:"uuid"`
	Properties  string             `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value       []byte             `json:"value,omitempty"`
	Descriptors []DescriptorConfig `json:"descriptors,omitempty"`
}

type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

type ProfileConfig struct {
	Services []ServiceConfig `json:"services"`
	RSSI     int             `json:"rssi,omitempty"`
}

// Profile is a GATT database that answers the commands of a FakeGATTClient
// through its callbacks, the way a remote peripheral would.
type Profile struct {
	mu       sync.Mutex
	rssi     int
	services []device.Service
	chars    map[string][]device.Characteristic // service ID -> characteristics
	descs    map[string][]device.Descriptor     // characteristic ID -> descriptors
	values   map[string][]byte                  // characteristic or descriptor ID -> value
}

// ProfileFromJSON builds a Profile from a ProfileConfig document. It panics
// on malformed input.
func ProfileFromJSON(jsonStrFmt string, args ...interface{}) *Profile {
	var cfg ProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &cfg); err != nil {
		panic(fmt.Sprintf("invalid profile JSON: %v", err))
	}
	return NewProfile(cfg)
}

func NewProfile(cfg ProfileConfig) *Profile {
	p := &Profile{
		rssi:   cfg.RSSI,
		chars:  make(map[string][]device.Characteristic),
		descs:  make(map[string][]device.Descriptor),
		values: make(map[string][]byte),
	}
	if p.rssi == 0 {
		p.rssi = -50
	}
	for _, sc := range cfg.Services {
		svcID := device.NormalizeUUID(sc.UUID)
		p.services = append(p.services, device.Service{ID: svcID, UUID: svcID, Primary: true})
		for _, cc := range sc.Characteristics {
			charUUID := device.NormalizeUUID(cc.UUID)
			charID := svcID + "/" + charUUID
			p.chars[svcID] = append(p.chars[svcID], device.Characteristic{
				ID:         charID,
				ServiceID:  svcID,
				UUID:       charUUID,
				Properties: device.ParseProperties(cc.Properties),
			})
			p.values[charID] = cc.Value
			for _, dc := range cc.Descriptors {
				descUUID := device.NormalizeUUID(dc.UUID)
				descID := charID + "/" + descUUID
				p.descs[charID] = append(p.descs[charID], device.Descriptor{
					ID:               descID,
					CharacteristicID: charID,
					UUID:             descUUID,
				})
				p.values[descID] = dc.Value
			}
		}
	}
	return p
}

// Value returns the current value of a characteristic or descriptor.
func (p *Profile) Value(id string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.values[id])
}

// Characteristic returns a snapshot of characteristicID with its current value.
func (p *Profile) Characteristic(characteristicID string) (device.Characteristic, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, chars := range p.chars {
		for _, c := range chars {
			if c.ID == characteristicID {
				c.Value = slices.Clone(p.values[c.ID])
				return c, true
			}
		}
	}
	return device.Characteristic{}, false
}

// Serve makes the profile answer client commands asynchronously.
func (p *Profile) Serve(client *FakeGATTClient) {
	client.OnCommand(func(cmd Command) {
		cb := client.Callbacks()
		go p.answer(cb, cmd)
	})
}

// Notify sets a characteristic value and pushes it as an unsolicited update.
func (p *Profile) Notify(client *FakeGATTClient, characteristicID string, value []byte) {
	p.mu.Lock()
	p.values[characteristicID] = value
	p.mu.Unlock()
	if c, ok := p.Characteristic(characteristicID); ok {
		client.Callbacks().OnValueUpdate(c, nil)
	}
}

func (p *Profile) answer(cb device.GATTCallbacks, cmd Command) {
	switch cmd.Op {
	case "discover-services":
		filter, _ := cmd.Args[0].([]string)
		cb.OnServices(p.filterServices(filter), nil)
	case "discover-included-services":
		cb.OnIncludedServices(cmd.Target, nil, nil)
	case "discover-characteristics":
		filter, _ := cmd.Args[0].([]string)
		chars, err := p.characteristics(cmd.Target, filter)
		cb.OnCharacteristics(cmd.Target, chars, err)
	case "discover-descriptors":
		p.mu.Lock()
		descs := slices.Clone(p.descs[cmd.Target])
		p.mu.Unlock()
		cb.OnDescriptors(cmd.Target, descs, nil)
	case "read":
		c, ok := p.Characteristic(cmd.Target)
		if !ok {
			cb.OnValueUpdate(device.Characteristic{ID: cmd.Target}, &device.NotFoundError{Resource: "characteristic", ID: cmd.Target})
			return
		}
		cb.OnValueUpdate(c, nil)
	case "write":
		p.mu.Lock()
		p.values[cmd.Target] = slices.Clone(cmd.Args[0].([]byte))
		p.mu.Unlock()
		if cmd.Args[1].(device.WriteMode) == device.WithResponse {
			cb.OnCharacteristicWrite(cmd.Target, nil)
		}
	case "write-descriptor":
		p.mu.Lock()
		p.values[cmd.Target] = slices.Clone(cmd.Args[0].([]byte))
		p.mu.Unlock()
		cb.OnDescriptorWrite(cmd.Target, nil)
	case "set-notify":
		cb.OnNotifyState(cmd.Target, cmd.Args[0].(bool), nil)
	case "read-rssi":
		cb.OnRSSI(p.rssi, nil)
	}
}

func (p *Profile) filterServices(filter []string) []device.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []device.Service
	for _, s := range p.services {
		if len(filter) == 0 || slices.Contains(device.NormalizeUUIDs(filter), s.UUID) {
			out = append(out, s)
		}
	}
	return out
}

func (p *Profile) characteristics(serviceID string, filter []string) ([]device.Characteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	chars, ok := p.chars[serviceID]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", ID: serviceID}
	}
	var out []device.Characteristic
	for _, c := range chars {
		if len(filter) == 0 || slices.Contains(device.NormalizeUUIDs(filter), c.UUID) {
			out = append(out, c)
		}
	}
	return out, nil
}
