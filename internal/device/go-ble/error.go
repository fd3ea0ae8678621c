package goble

import (
	"fmt"
	"strings"

	"github.com/srg/asyncble/internal/device"
)

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
// The original error stays in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "is bluetooth turned on"),
		strings.Contains(msg, "bluetooth is turned off"),
		strings.Contains(msg, "powered off"):
		return fmt.Errorf("%w: %w", device.ErrBluetoothOff, err)
	case strings.Contains(msg, "device already connected"):
		return fmt.Errorf("%w: %w", device.ErrAlreadyConnected, err)
	case strings.Contains(msg, "device not connected"),
		strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %w", device.ErrNotConnected, err)
	case strings.Contains(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %w", device.ErrNotInitialized, err)
	default:
		return err
	}
}
