package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/asyncble/internal/adapter"
	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/inspector"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> <service-uuid> <char-uuid>",
	Short: "Read a characteristic value",
	Long: `Connects to a BLE device, discovers only the addressed characteristic
and reads its value.

Examples:
  # Read the battery level
  asyncble read AA:BB:CC:DD:EE:FF 180f 2a19

  # Print raw hex only
  asyncble read AA:BB:CC:DD:EE:FF 180f 2a19 --hex`,
	Args: cobra.ExactArgs(3),
	RunE: runRead,
}

var (
	readHex    bool
	readFormat string
)

func init() {
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Print the value as bare hex")
	readCmd.Flags().StringVarP(&readFormat, "format", "f", "", "Output format (text, json)")
}

type readResult struct {
	Characteristic string `json:"characteristic"`
	Value          string `json:"value"`
}

func runRead(cmd *cobra.Command, args []string) error {
	address, serviceUUID, charUUID := args[0], args[1], args[2]

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(readFormat, cfg)
	if err != nil {
		return err
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

	v, err := inspector.InspectDevice(ctx, sess.central, address, sess.inspectOptions(false), logger, func(p *adapter.Peripheral) (device.Characteristic, error) {
		opCtx, cancel := sess.opContext(ctx)
		defer cancel()
		char, err := resolveCharacteristic(opCtx, p, serviceUUID, charUUID)
		if err != nil {
			return device.Characteristic{}, err
		}
		v, err := p.Read(opCtx, char.ID)
		if err != nil {
			return device.Characteristic{}, fmt.Errorf("failed to read %s: %w", char.ID, err)
		}
		return v, nil
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case format == formatJSON:
		return writeJSON(out, readResult{Characteristic: v.ID, Value: hex.EncodeToString(v.Value)})
	case readHex:
		fmt.Fprintln(out, hex.EncodeToString(v.Value))
	default:
		fmt.Fprintf(out, "%s: %s\n", v.ID, formatValue(v.Value))
	}
	return nil
}
