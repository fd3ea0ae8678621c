package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/asyncble/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bluetooth off",
			err:  fmt.Errorf("failed to start scan: %w", device.ErrBluetoothOff),
			want: "Bluetooth is turned off, enable it and try again",
		},
		{
			name: "unsupported platform",
			err:  fmt.Errorf("failed to create BLE central: %w", device.ErrUnsupported),
			want: "BLE is not supported on this platform",
		},
		{
			name: "timeout",
			err:  fmt.Errorf("failed to connect to X: %w", context.DeadlineExceeded),
			want: "operation timed out: failed to connect to X: context deadline exceeded",
		},
		{
			name: "not found",
			err:  fmt.Errorf("lookup: %w", &device.NotFoundError{Resource: "service", ID: "180d"}),
			want: "service 180d is not available on the device",
		},
		{
			name: "passthrough",
			err:  errors.New("boom"),
			want: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}
