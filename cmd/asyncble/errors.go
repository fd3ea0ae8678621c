package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/asyncble/internal/device"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE connection was unexpectedly lost during operation.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a device that was never connected or was already disconnected.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns adapter and stack errors into a message for the
// terminal. Unknown errors are printed as is.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off, enable it and try again"
	case errors.Is(err, device.ErrUnsupported):
		return "BLE is not supported on this platform"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("operation timed out: %v", err)
	case errors.Is(err, device.ErrSuperseded):
		return fmt.Sprintf("operation replaced by a newer request: %v", err)
	case errors.Is(err, ErrConnectionLost):
		return fmt.Sprintf("device disconnected: %v", err)
	}

	var nf *device.NotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("%s %s is not available on the device", nf.Resource, nf.ID)
	}
	return err.Error()
}
