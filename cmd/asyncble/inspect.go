package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/srg/asyncble/internal/adapter"
	"github.com/srg/asyncble/internal/bledb"
	"github.com/srg/asyncble/inspector"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect services, characteristics, and descriptors of a BLE device",
	Long: `Connects to a BLE device by address and discovers its services,
characteristics, and descriptors. Attempts to read characteristic values when possible.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectFormat string
	inspectRead   bool
)

func init() {
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "", "Output format (text, json)")
	inspectCmd.Flags().BoolVar(&inspectRead, "read", true, "Read values of readable characteristics")
}

func runInspect(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(inspectFormat, cfg)
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

	opts := sess.inspectOptions(inspectRead)
	report, err := inspector.InspectDevice(ctx, sess.central, address, opts, logger, func(p *adapter.Peripheral) (*inspector.Report, error) {
		opCtx, cancel := sess.opContext(ctx)
		defer cancel()
		return inspector.Walk(opCtx, p, opts)
	})
	if err != nil {
		return err
	}

	if format == formatJSON {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	displayReport(cmd.OutOrStdout(), report)
	return nil
}

func displayReport(out io.Writer, r *inspector.Report) {
	colors := newPalette(out)

	name := r.Name
	if name == "" {
		name = "<unknown>"
	}
	fmt.Fprintf(out, "%s %s (%s)\n", colors.header.Sprint("Device"), r.Address, name)
	if r.RSSI != nil {
		fmt.Fprintf(out, "RSSI: %d dBm\n", *r.RSSI)
	}
	if len(r.Services) == 0 {
		fmt.Fprintln(out, "No services discovered")
		return
	}

	for _, s := range r.Services {
		fmt.Fprintf(out, "\n%s %s\n", colors.header.Sprint("Service"), colors.name.Sprint(displayName(s.UUID, s.Name)))
		for _, inc := range s.Included {
			fmt.Fprintf(out, "  Includes %s\n", displayName(inc, bledb.LookupService(inc)))
		}
		for _, c := range s.Characteristics {
			fmt.Fprintf(out, "  Characteristic %s [%s]\n", colors.name.Sprint(displayName(c.UUID, c.Name)), c.Properties)
			switch {
			case c.ReadError != "":
				fmt.Fprintf(out, "    Value: %s\n", colors.dim.Sprintf("<read failed: %s>", c.ReadError))
			case c.Value != nil:
				fmt.Fprintf(out, "    Value: %s\n", formatValue(c.Value))
			}
			for _, d := range c.Descriptors {
				fmt.Fprintf(out, "    Descriptor %s\n", displayName(d.UUID, d.Name))
			}
		}
	}
}
