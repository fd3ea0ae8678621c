package goble

import (
	"slices"
	"sort"

	"github.com/go-ble/ble"
	"github.com/srg/asyncble/internal/device"
)

// txPowerUnavailable is the value go-ble reports when no TX power level was advertised.
const txPowerUnavailable = 127

func uuidString(u ble.UUID) string {
	return device.NormalizeUUID(u.String())
}

// parseUUIDs converts normalized or raw UUID strings to ble.UUIDs.
func parseUUIDs(uuids []string) ([]ble.UUID, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	normalized, err := device.ValidateUUID(uuids...)
	if err != nil {
		return nil, err
	}
	result := make([]ble.UUID, 0, len(normalized))
	for _, u := range normalized {
		parsed, err := ble.Parse(u)
		if err != nil {
			return nil, err
		}
		result = append(result, parsed)
	}
	return result, nil
}

func toDiscovery(adv ble.Advertisement) device.Discovery {
	a := device.Advertisement{
		LocalName:        adv.LocalName(),
		ManufacturerData: adv.ManufacturerData(),
		Connectable:      adv.Connectable(),
	}
	for _, u := range adv.Services() {
		a.Services = append(a.Services, uuidString(u))
	}
	sort.Strings(a.Services)
	if sd := adv.ServiceData(); len(sd) > 0 {
		a.ServiceData = make(map[string][]byte, len(sd))
		for _, d := range sd {
			a.ServiceData[uuidString(d.UUID)] = d.Data
		}
	}
	if tx := adv.TxPowerLevel(); tx != txPowerUnavailable {
		a.TxPower = &tx
	}

	return device.Discovery{
		ID:            device.PeripheralID(adv.Addr().String()),
		Name:          adv.LocalName(),
		RSSI:          adv.RSSI(),
		Advertisement: a,
	}
}

// advertises reports whether d advertises any of services. An empty filter matches everything.
func advertises(d device.Discovery, services []string) bool {
	if len(services) == 0 {
		return true
	}
	for _, s := range d.Advertisement.Services {
		if slices.Contains(services, s) {
			return true
		}
	}
	return false
}

func serviceID(svc *ble.Service) string {
	return uuidString(svc.UUID)
}

func characteristicID(serviceID string, c *ble.Characteristic) string {
	return serviceID + "/" + uuidString(c.UUID)
}

func descriptorID(characteristicID string, d *ble.Descriptor) string {
	return characteristicID + "/" + uuidString(d.UUID)
}

func toService(svc *ble.Service, primary bool) device.Service {
	id := serviceID(svc)
	return device.Service{ID: id, UUID: id, Primary: primary}
}

func toCharacteristic(serviceID string, c *ble.Characteristic, value []byte) device.Characteristic {
	return device.Characteristic{
		ID:         characteristicID(serviceID, c),
		ServiceID:  serviceID,
		UUID:       uuidString(c.UUID),
		Properties: device.Property(c.Property),
		Value:      value,
	}
}

func toDescriptor(characteristicID string, d *ble.Descriptor) device.Descriptor {
	return device.Descriptor{
		ID:               descriptorID(characteristicID, d),
		CharacteristicID: characteristicID,
		UUID:             uuidString(d.UUID),
		Value:            d.Value,
	}
}
