package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/asyncble/internal/adapter"
	"github.com/srg/asyncble/internal/device"
	"github.com/srg/asyncble/inspector"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <service-uuid> <char-uuid>",
	Short: "Stream characteristic notifications",
	Long: `Enables notifications (or indications) on a characteristic and prints
every value update until interrupted.

Examples:
  # Stream heart rate measurements
  asyncble subscribe AA:BB:CC:DD:EE:FF 180d 2a37

  # Stop after ten updates
  asyncble subscribe AA:BB:CC:DD:EE:FF 180d 2a37 --count 10`,
	Args: cobra.ExactArgs(3),
	RunE: runSubscribe,
}

var (
	subscribeCount    int
	subscribeDuration time.Duration
)

func init() {
	subscribeCmd.Flags().IntVarP(&subscribeCount, "count", "n", 0, "Stop after N updates (0 for unlimited)")
	subscribeCmd.Flags().DurationVarP(&subscribeDuration, "duration", "d", 0, "Stop after this long (0 for indefinite)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address, serviceUUID, charUUID := args[0], args[1], args[2]

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	if subscribeCount < 0 {
		return fmt.Errorf("count must not be negative")
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

	_, err = inspector.InspectDevice(ctx, sess.central, address, sess.inspectOptions(false), logger, func(p *adapter.Peripheral) (struct{}, error) {
		return struct{}{}, subscribe(ctx, cmd, sess, p, serviceUUID, charUUID)
	})
	return err
}

// subscribe enables notifications on the characteristic, streams them and
// disables them again.
func subscribe(ctx context.Context, cmd *cobra.Command, sess *session, p *adapter.Peripheral, serviceUUID, charUUID string) error {
	opCtx, cancel := sess.opContext(ctx)
	char, err := resolveCharacteristic(opCtx, p, serviceUUID, charUUID)
	if err == nil && !char.Properties.Has(device.PropNotify) && !char.Properties.Has(device.PropIndicate) {
		err = fmt.Errorf("characteristic %s supports neither notify nor indicate", char.ID)
	}
	if err == nil {
		err = p.SetNotify(opCtx, char.ID, true)
	}
	cancel()
	if errors.Is(err, device.ErrAdapterClosed) {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if err != nil {
		return err
	}

	if subscribeDuration > 0 {
		var cancelRun context.CancelFunc
		ctx, cancelRun = context.WithTimeout(ctx, subscribeDuration)
		defer cancelRun()
	}

	err = streamNotifications(ctx, cmd, sess, p, char.ID)

	// Best-effort unsubscribe; the link may already be gone.
	offCtx, offCancel := sess.opContext(context.Background())
	defer offCancel()
	if offErr := p.SetNotify(offCtx, char.ID, false); offErr != nil {
		sess.logger.WithError(offErr).Debug("Failed to disable notifications")
	}
	return err
}

// streamNotifications prints updates of charID until ctx ends, the count is
// reached or the peripheral disconnects.
func streamNotifications(ctx context.Context, cmd *cobra.Command, sess *session, p *adapter.Peripheral, charID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lost := make(chan error, 1)
	go func() {
		for ev := range sess.central.Disconnects().All(ctx) {
			if ev.ID == p.ID() {
				lost <- fmt.Errorf("%w: %v", ErrConnectionLost, ev.Err)
				cancel()
				return
			}
		}
	}()

	out := cmd.OutOrStdout()
	received := 0
	for c := range p.Notifications().All(ctx) {
		if c.ID != charID {
			continue
		}
		received++
		fmt.Fprintf(out, "[%s] %s: %s\n", time.Now().Format("15:04:05.000"), c.ID, formatValue(c.Value))
		if subscribeCount > 0 && received >= subscribeCount {
			return nil
		}
	}

	select {
	case err := <-lost:
		return err
	default:
	}
	switch err := ctx.Err(); {
	case err == nil:
		// Notifications close when the peripheral adapter is torn down.
		return ErrConnectionLost
	case errors.Is(err, context.DeadlineExceeded):
		return nil
	default:
		return err
	}
}
