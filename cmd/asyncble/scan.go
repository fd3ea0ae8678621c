package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Devices are listed in the order they were first seen, with their names,
addresses, RSSI values, and advertised services.`,
	RunE: runScan,
}

var (
	scanDuration        time.Duration
	scanFormat          string
	scanServices        []string
	scanAllowList       []string
	scanBlockList       []string
	scanAllowDuplicates bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default: scan_timeout from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (text, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanAllowDuplicates, "allow-duplicates", false, "Report every advertisement, not only the first per device")
}

// scanResult is the JSON form of a discovered device.
type scanResult struct {
	Address          string   `json:"address"`
	Name             string   `json:"name"`
	RSSI             int      `json:"rssi"`
	Services         []string `json:"services"`
	ManufacturerData string   `json:"manufacturer_data,omitempty"`
	TxPower          *int     `json:"tx_power,omitempty"`
	Connectable      bool     `json:"connectable"`
	Seen             int      `json:"seen"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(scanFormat, cfg)
	if err != nil {
		return err
	}
	if len(scanServices) > 0 {
		if _, err := device.ValidateUUID(scanServices...); err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := &scanner.ScanOptions{
		Duration:        cfg.ScanTimeout,
		AllowDuplicates: scanAllowDuplicates,
		ServiceUUIDs:    scanServices,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}
	if scanDuration > 0 {
		opts.Duration = scanDuration
	}

	sess, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	devices, err := scanner.NewScanner(sess.central, logger).Scan(ctx, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == formatJSON {
		list := make([]scanResult, 0, len(devices))
		for _, d := range devices {
			list = append(list, scanResult{
				Address:          d.Address,
				Name:             d.Name,
				RSSI:             d.RSSI,
				Services:         d.Services,
				ManufacturerData: hex.EncodeToString(d.ManufacturerData),
				TxPower:          d.TxPower,
				Connectable:      d.Connectable,
				Seen:             d.Seen,
			})
		}
		return writeJSON(out, list)
	}
	return displayDevicesTable(out, devices)
}

func displayDevicesTable(out io.Writer, devices []scanner.DeviceEntry) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")

	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "<unknown>"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(d.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, d.Address, d.RSSI, services)
	}

	return w.Flush()
}
