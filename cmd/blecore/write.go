package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roambot/blecore/internal/bleid"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <characteristic-uuid> <hex-data>",
	Short: "Write data to a characteristic",
	Long: `Connect to a device and write a raw payload to one of its GATT
characteristics.

The payload is hex-encoded, with or without spaces:

  blecore write AA:BB:CC:DD:EE:FF 22bb746f-2ba1-7554-2d6f-726568705327 ff020100 01fb`,
	Args: cobra.MinimumNArgs(3),
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().Duration("timeout", 0, "Connection timeout (0 uses the configured connect timeout)")
}

// parseHexPayload decodes hex bytes, allowing spaces between args and
// within them.
func parseHexPayload(args []string) ([]byte, error) {
	joined := strings.ReplaceAll(strings.Join(args, ""), " ", "")
	data, err := hex.DecodeString(joined)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload %q: %w", joined, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	return data, nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	address := args[0]

	charUUID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid characteristic UUID %q: %w", args[1], err)
	}

	payload, err := parseHexPayload(args[2:])
	if err != nil {
		return err
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

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	progress := newProgressPrinter(fmt.Sprintf("Writing to %s", address), "Connecting")
	progress.Start()
	defer progress.Stop()

	conn, err := engine.Connect(ctx, address)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	progress.SetPhase("Writing")
	if err := conn.Write(ctx, bleid.UUIDToBytes(charUUID), payload); err != nil {
		return err
	}
	progress.Stop()

	fmt.Printf("Wrote %d bytes to %s\n", len(payload), charUUID)
	return nil
}
