package main

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/device"
	goble "github.com/srg/asyncble/internal/device/go-ble"
)

// centralBackend is a central stack that owns a radio and must be released.
type centralBackend interface {
	device.CentralStack
	Close() error
}

// peripheralBackend is a peripheral-role stack that owns a radio and must be released.
type peripheralBackend interface {
	device.PeripheralManagerStack
	Close() error
}

// Stack constructors; tests replace them with in-memory stacks.
var (
	newCentralBackend = func(logger *logrus.Logger, opts *goble.Options) (centralBackend, error) {
		c, err := goble.NewCentral(logger, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	newPeripheralBackend = func(logger *logrus.Logger, opts *goble.Options) (peripheralBackend, error) {
		m, err := goble.NewPeripheralManager(logger, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
)
