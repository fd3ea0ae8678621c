package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/srg/asyncble/internal/adapter"
	"github.com/srg/asyncble/internal/device"
)

// resolveCharacteristic discovers only the service and characteristic the
// command targets.
func resolveCharacteristic(ctx context.Context, p *adapter.Peripheral, serviceUUID, charUUID string) (device.Characteristic, error) {
	uuids, err := device.ValidateUUID(serviceUUID, charUUID)
	if err != nil {
		return device.Characteristic{}, err
	}
	svcUUID, chrUUID := uuids[0], uuids[1]

	services, err := p.DiscoverServices(ctx, []string{svcUUID})
	if err != nil {
		return device.Characteristic{}, fmt.Errorf("failed to discover services: %w", err)
	}
	if len(services) == 0 {
		return device.Characteristic{}, &device.NotFoundError{Resource: "service", ID: svcUUID}
	}

	chars, err := p.DiscoverCharacteristics(ctx, services[0].ID, []string{chrUUID})
	if err != nil {
		return device.Characteristic{}, fmt.Errorf("failed to discover characteristics: %w", err)
	}
	for _, c := range chars {
		if c.UUID == chrUUID {
			return c, nil
		}
	}
	return device.Characteristic{}, &device.NotFoundError{Resource: "characteristic", ID: svcUUID + "/" + chrUUID}
}

// parseHex decodes hex input, ignoring separators and 0x prefixes.
func parseHex(s string) ([]byte, error) {
	cleaned := strings.ReplaceAll(s, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ":", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, "0x", "")
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}
