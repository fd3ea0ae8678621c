package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/asyncble/internal/adapter"
	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/inspector"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <service-uuid> <char-uuid> <data>",
	Short: "Write to a characteristic",
	Long: `Writes data to a BLE characteristic.

Examples:
  # Write a string
  asyncble write AA:BB:CC:DD:EE:FF 180d 2a39 "reset"

  # Write hex data
  asyncble write AA:BB:CC:DD:EE:FF 180d 2a39 01 --hex

  # Write without response (faster, no ACK)
  asyncble write AA:BB:CC:DD:EE:FF 180d 2a39 01 --hex --without-response`,
	Args: cobra.ExactArgs(4),
	RunE: runWrite,
}

var (
	writeHex        bool
	writeNoResponse bool
)

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Parse input as hex string (e.g., 'FF01'); raw bytes by default")
	writeCmd.Flags().BoolVar(&writeNoResponse, "without-response", false, "Write without response (faster, no ACK); default waits for ACK")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address, serviceUUID, charUUID, dataStr := args[0], args[1], args[2], args[3]

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	data := []byte(dataStr)
	if writeHex {
		if data, err = parseHex(dataStr); err != nil {
			return err
		}
	}
	mode := device.WithResponse
	if writeNoResponse {
		mode = device.WithoutResponse
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	sess, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	charID, err := inspector.InspectDevice(ctx, sess.central, address, sess.inspectOptions(false), logger, func(p *adapter.Peripheral) (string, error) {
		opCtx, cancel := sess.opContext(ctx)
		defer cancel()
		char, err := resolveCharacteristic(opCtx, p, serviceUUID, charUUID)
		if err != nil {
			return "", err
		}
		if err := p.Write(opCtx, char.ID, data, mode); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", char.ID, err)
		}
		return char.ID, nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s (%s)\n", len(data), charID, mode)
	return nil
}
