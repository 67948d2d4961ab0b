package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roambot/blecore/internal/bleid"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <characteristic-uuid>",
	Short: "Subscribe to characteristic notifications",
	Long: `Connect to a device, enable notifications on a characteristic, and
print each notification until interrupted with Ctrl+C.

Example:
  blecore subscribe AA:BB:CC:DD:EE:FF 22bb746f-2ba6-7554-2d6f-726568705327 --hex`,
	Args: cobra.ExactArgs(2),
	RunE: runSubscribe,
}

var subscribeHex bool

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output as hex string; raw bytes by default")
	subscribeCmd.Flags().Duration("timeout", 0, "Connection timeout (0 uses the configured connect timeout)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address := args[0]

	charUUID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid characteristic UUID %q: %w", args[1], err)
	}

	engine, cfg, _, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	timeout := cfg.ConnectTimeout
	if flagTimeout, _ := cmd.Flags().GetDuration("timeout"); flagTimeout > 0 {
		timeout = flagTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	progress := newProgressPrinter(fmt.Sprintf("Subscribing to %s", address), "Connecting")
	progress.Start()
	defer progress.Stop()

	connectCtx, connectCancel := context.WithTimeout(ctx, timeout)
	defer connectCancel()

	conn, err := engine.Connect(connectCtx, address)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	progress.SetPhase("Subscribing")
	timestamp := color.New(color.FgCyan)
	err = conn.Subscribe(connectCtx, bleid.UUIDToBytes(charUUID), func(data []byte) {
		prefix := timestamp.Sprintf("[%s]", time.Now().Format("15:04:05.000"))
		if subscribeHex {
			fmt.Printf("%s %s\n", prefix, hex.EncodeToString(data))
			return
		}
		fmt.Printf("%s ", prefix)
		_, _ = os.Stdout.Write(data)
		fmt.Println()
	})
	if err != nil {
		return err
	}
	progress.Stop()

	fmt.Fprintf(os.Stderr, "Subscribed to %s. Press Ctrl+C to stop...\n", charUUID)

	<-ctx.Done()
	return nil
}
