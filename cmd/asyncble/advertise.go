package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/asyncble/internal/adapter"
	"github.com/srg/asyncble/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// advertiseCmd represents the advertise command
var advertiseCmd = &cobra.Command{
	Use:   "advertise",
	Short: "Publish local GATT services and advertise them",
	Long: `Runs the peripheral role: registers local services, starts advertising
and keeps serving until interrupted or the duration elapses.

Characteristics are given as <service>/<char>[=hex]. Each one is readable,
writable and notifiable, starting with the given value.

Examples:
  # Advertise a battery service at 95%
  asyncble advertise --name Sensor --char 180f/2a19=5f

  # Advertise manufacturer data only
  asyncble advertise --mfg-id 0x004c --mfg-data 0215`,
	Args: cobra.NoArgs,
	RunE: runAdvertise,
}

var (
	advertiseName     string
	advertiseServices []string
	advertiseChars    []string
	advertiseMfgID    uint16
	advertiseMfgData  string
	advertiseDuration time.Duration
)

func init() {
	advertiseCmd.Flags().StringVar(&advertiseName, "name", "", "Local name to advertise")
	advertiseCmd.Flags().StringSliceVarP(&advertiseServices, "service", "s", nil, "Service UUIDs to publish and advertise")
	advertiseCmd.Flags().StringSliceVarP(&advertiseChars, "char", "c", nil, "Characteristics as <service>/<char>[=hex]")
	advertiseCmd.Flags().Uint16Var(&advertiseMfgID, "mfg-id", 0, "Manufacturer (company) identifier")
	advertiseCmd.Flags().StringVar(&advertiseMfgData, "mfg-data", "", "Manufacturer data as hex")
	advertiseCmd.Flags().DurationVarP(&advertiseDuration, "duration", "d", 0, "Advertise for this long (0 for indefinite)")
}

func runAdvertise(cmd *cobra.Command, args []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	services, err := buildLocalServices(advertiseServices, advertiseChars)
	if err != nil {
		return err
	}
	adv := device.AdvertisingData{
		LocalName:      advertiseName,
		ManufacturerID: advertiseMfgID,
	}
	if advertiseMfgData != "" {
		if adv.ManufacturerData, err = parseHex(advertiseMfgData); err != nil {
			return err
		}
	}
	for _, svc := range services {
		adv.ServiceUUIDs = append(adv.ServiceUUIDs, svc.UUID)
	}
	if adv.LocalName == "" && len(adv.ServiceUUIDs) == 0 && len(adv.ManufacturerData) == 0 {
		return fmt.Errorf("nothing to advertise: provide --name, --service, --char or --mfg-data")
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	backend, err := newPeripheralBackend(logger, &cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to create BLE peripheral: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.WithError(err).Debug("Failed to close BLE peripheral")
		}
	}()
	pm := adapter.NewPeripheralManager(backend, logger)
	defer pm.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	opCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	err = publish(opCtx, pm, services, adv, func(format string, a ...any) {
		fmt.Fprintf(out, format, a...)
	})
	cancel()
	if err != nil {
		return err
	}

	if advertiseDuration > 0 {
		var cancelRun context.CancelFunc
		ctx, cancelRun = context.WithTimeout(ctx, advertiseDuration)
		defer cancelRun()
	}
	<-ctx.Done()

	unpublish(pm, len(services) > 0, logger)
	fmt.Fprintln(out, "Advertising stopped")
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil
	}
	return ctx.Err()
}

// publish adds every service, then starts advertising.
func publish(ctx context.Context, pm *adapter.PeripheralManager, services []device.LocalService, adv device.AdvertisingData, printf func(string, ...any)) error {
	for _, svc := range services {
		added, err := pm.AddService(ctx, svc)
		if err != nil {
			return fmt.Errorf("failed to add service %s: %w", svc.UUID, err)
		}
		printf("Added service %s with %d characteristics\n", added.UUID, len(svc.Characteristics))
	}
	if err := pm.StartAdvertising(ctx, adv); err != nil {
		return fmt.Errorf("failed to start advertising: %w", err)
	}
	printf("Advertising %q services=%v\n", adv.LocalName, adv.ServiceUUIDs)
	return nil
}

func unpublish(pm *adapter.PeripheralManager, hasServices bool, logger *logrus.Logger) {
	if err := pm.StopAdvertising(); err != nil {
		logger.WithError(err).Warn("Failed to stop advertising")
	}
	if !hasServices {
		return
	}
	if err := pm.RemoveAllServices(); err != nil {
		logger.WithError(err).Warn("Failed to remove services")
	}
}

// buildLocalServices groups characteristic specs under their services,
// keeping the order services were first named.
func buildLocalServices(serviceUUIDs, charSpecs []string) ([]device.LocalService, error) {
	services := orderedmap.New[string, *device.LocalService]()
	ensure := func(raw string) (*device.LocalService, error) {
		uuids, err := device.ValidateUUID(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID: %w", err)
		}
		svc, ok := services.Get(uuids[0])
		if !ok {
			svc = &device.LocalService{UUID: uuids[0], Primary: true}
			services.Set(uuids[0], svc)
		}
		return svc, nil
	}

	for _, raw := range serviceUUIDs {
		if _, err := ensure(raw); err != nil {
			return nil, err
		}
	}

	for _, spec := range charSpecs {
		path, value, hasValue := strings.Cut(spec, "=")
		svcUUID, charUUID, ok := strings.Cut(path, "/")
		if !ok {
			return nil, fmt.Errorf("invalid characteristic %q: expected <service>/<char>[=hex]", spec)
		}
		svc, err := ensure(svcUUID)
		if err != nil {
			return nil, err
		}
		uuids, err := device.ValidateUUID(charUUID)
		if err != nil {
			return nil, fmt.Errorf("invalid characteristic UUID: %w", err)
		}
		lc := device.LocalCharacteristic{
			UUID:       uuids[0],
			Properties: device.PropRead | device.PropWrite | device.PropNotify,
		}
		if hasValue {
			if lc.Value, err = parseHex(value); err != nil {
				return nil, err
			}
		}
		svc.Characteristics = append(svc.Characteristics, lc)
	}

	out := make([]device.LocalService, 0, services.Len())
	for pair := services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	return out, nil
}
