package scanner

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/adapter"
	"github.com/srg/asyncble/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DeviceEntry is the folded advertisement state of one device
type DeviceEntry struct {
	Address          string
	Name             string
	RSSI             int
	Services         []string
	ManufacturerData []byte
	TxPower          *int
	Connectable      bool
	Seen             int
	LastSeen         time.Time
}

// Scanner handles BLE device discovery
type Scanner struct {
	central *adapter.Central
	logger  *logrus.Logger

	mu      sync.Mutex
	devices *orderedmap.OrderedMap[device.PeripheralID, *DeviceEntry]
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	AllowDuplicates bool
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration: 10 * time.Second,
	}
}

// NewScanner creates a new BLE scanner on central
func NewScanner(central *adapter.Central, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		central: central,
		logger:  logger,
		devices: orderedmap.New[device.PeripheralID, *DeviceEntry](),
	}
}

// Scan performs BLE discovery until the duration elapses or ctx ends and
// returns the discovered devices in first-seen order. Ending early is not
// an error.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) ([]DeviceEntry, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}

	var services []string
	if len(opts.ServiceUUIDs) > 0 {
		var err error
		if services, err = device.ValidateUUID(opts.ServiceUUIDs...); err != nil {
			return nil, fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.mu.Lock()
	s.devices = orderedmap.New[device.PeripheralID, *DeviceEntry]()
	s.mu.Unlock()

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	ch, err := s.central.Scan(services, opts.AllowDuplicates)
	if err != nil {
		return nil, fmt.Errorf("failed to start scan: %w", err)
	}

	for d := range ch.All(ctx) {
		if s.shouldIncludeDevice(d.ID, opts) {
			s.handleDiscovery(d)
		}
	}

	if err := s.central.StopScan(); err != nil {
		s.logger.WithError(err).Debug("Stop scan failed")
	}
	if dropped := ch.Dropped(); dropped > 0 {
		s.logger.WithField("dropped", dropped).Warn("Scan buffer overflowed, oldest advertisements dropped")
	}

	devices := s.Devices()
	s.logger.WithField("device_count", len(devices)).Info("BLE scan completed")
	return devices, nil
}

// handleDiscovery updates an existing or adds a new device
func (s *Scanner) handleDiscovery(d device.Discovery) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, existing := s.devices.Get(d.ID)
	if !existing {
		e = &DeviceEntry{Address: string(d.ID)}
		s.devices.Set(d.ID, e)
	}

	e.Seen++
	e.LastSeen = time.Now()
	e.RSSI = d.RSSI
	e.Connectable = d.Advertisement.Connectable
	e.TxPower = d.Advertisement.TxPower
	if d.Name != "" {
		e.Name = d.Name
	}
	if len(d.Advertisement.Services) > 0 {
		e.Services = d.Advertisement.Services
	}
	if len(d.Advertisement.ManufacturerData) > 0 {
		e.ManufacturerData = d.Advertisement.ManufacturerData
	}

	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  e.Name,
			"address": e.Address,
			"rssi":    e.RSSI,
		}).Info("Discovered new device")
	}
}

// shouldIncludeDevice applies the allow and block lists. Service filtering
// is left to the stack.
func (s *Scanner) shouldIncludeDevice(id device.PeripheralID, opts *ScanOptions) bool {
	match := func(addr string) bool {
		return strings.EqualFold(addr, string(id))
	}
	if slices.ContainsFunc(opts.BlockList, match) {
		return false
	}
	return len(opts.AllowList) == 0 || slices.ContainsFunc(opts.AllowList, match)
}

// Devices returns a snapshot of discovered devices in first-seen order
func (s *Scanner) Devices() []DeviceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	devs := make([]DeviceEntry, 0, s.devices.Len())
	for pair := s.devices.Oldest(); pair != nil; pair = pair.Next() {
		devs = append(devs, *pair.Value)
	}
	return devs
}
