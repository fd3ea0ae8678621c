package inspector

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/adapter"
	"github.com/srg/asyncble/internal/bledb"
	"github.com/srg/asyncble/internal/device"
)

// InspectOptions defines options for inspecting a BLE device profile
type InspectOptions struct {
	ConnectTimeout time.Duration
	// ReadValues reads every readable characteristic during Walk.
	ReadValues bool
}

// InspectCallback processes a connected peripheral and produces output of type R
type InspectCallback[R any] func(*adapter.Peripheral) (R, error)

// InspectDevice connects to address through central, executes the callback
// with the connected peripheral and disconnects afterwards.
func InspectDevice[R any](ctx context.Context, central *adapter.Central, address string, opts *InspectOptions, logger *logrus.Logger, callback InspectCallback[R]) (R, error) {
	var zero R
	if opts == nil {
		opts = &InspectOptions{ConnectTimeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}

	id := device.PeripheralID(strings.ToLower(address))
	logger.WithField("peripheral", id).Info("Connecting")

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	p, err := central.Connect(connectCtx, id)
	cancel()
	if err != nil {
		return zero, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	// Ensure the peripheral is disconnected after the callback completes
	defer func() {
		if err := central.Disconnect(id); err != nil {
			logger.WithError(err).Debug("failed to disconnect device")
		}
	}()

	return callback(p)
}

// Report is the GATT database of one peripheral.
type Report struct {
	Address  string    `json:"address"`
	Name     string    `json:"name"`
	RSSI     *int      `json:"rssi,omitempty"`
	Services []Service `json:"services"`
}

type Service struct {
	UUID            string           `json:"uuid"`
	Name            string           `json:"name,omitempty"`
	Included        []string         `json:"included,omitempty"`
	Characteristics []Characteristic `json:"characteristics"`
}

type Characteristic struct {
	UUID        string       `json:"uuid"`
	Name        string       `json:"name,omitempty"`
	Properties  string       `json:"properties"`
	Value       HexBytes     `json:"value,omitempty"`
	ReadError   string       `json:"read_error,omitempty"`
	Descriptors []Descriptor `json:"descriptors"`
}

// HexBytes marshals to a hex string.
type HexBytes []byte

func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

type Descriptor struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}

// Walk discovers the whole GATT database of p. Read failures are recorded
// per characteristic; discovery failures abort the walk.
func Walk(ctx context.Context, p *adapter.Peripheral, opts *InspectOptions) (*Report, error) {
	report := &Report{
		Address:  string(p.ID()),
		Name:     p.Name(),
		Services: []Service{},
	}

	services, err := p.DiscoverServices(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}

	for _, svc := range services {
		s := Service{
			UUID:            svc.UUID,
			Name:            bledb.LookupService(svc.UUID),
			Characteristics: []Characteristic{},
		}

		included, err := p.DiscoverIncludedServices(ctx, svc.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to discover included services of %s: %w", svc.UUID, err)
		}
		for _, inc := range included {
			s.Included = append(s.Included, inc.UUID)
		}

		chars, err := p.DiscoverCharacteristics(ctx, svc.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to discover characteristics of %s: %w", svc.UUID, err)
		}
		for _, c := range chars {
			ch, err := walkCharacteristic(ctx, p, c, opts != nil && opts.ReadValues)
			if err != nil {
				return nil, err
			}
			s.Characteristics = append(s.Characteristics, ch)
		}
		report.Services = append(report.Services, s)
	}

	if rssi, err := p.ReadRSSI(ctx); err == nil {
		report.RSSI = &rssi
	}
	return report, nil
}

func walkCharacteristic(ctx context.Context, p *adapter.Peripheral, c device.Characteristic, read bool) (Characteristic, error) {
	ch := Characteristic{
		UUID:        c.UUID,
		Name:        bledb.LookupCharacteristic(c.UUID),
		Properties:  c.Properties.String(),
		Descriptors: []Descriptor{},
	}

	descs, err := p.DiscoverDescriptors(ctx, c.ID)
	if err != nil {
		return ch, fmt.Errorf("failed to discover descriptors of %s: %w", c.ID, err)
	}
	for _, d := range descs {
		ch.Descriptors = append(ch.Descriptors, Descriptor{
			UUID: d.UUID,
			Name: bledb.LookupDescriptor(d.UUID),
		})
	}

	if read && c.Properties.Has(device.PropRead) {
		v, err := p.Read(ctx, c.ID)
		if err != nil {
			ch.ReadError = err.Error()
		} else if v.Value != nil {
			ch.Value = v.Value
		} else {
			ch.Value = HexBytes{}
		}
	}
	return ch, nil
}
