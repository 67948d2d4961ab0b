package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roambot/blecore/pkg/watcher"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Discovery runs until the initial enumeration of nearby devices completes
or the duration elapses, then prints the discovered devices.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Maximum scan time (0 uses the configured scan timeout)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, args []string) error {
	engine, cfg, logger, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	outputFormat := cfg.OutputFormat
	if scanFormat != "" {
		outputFormat = scanFormat
	}
	switch outputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("invalid format '%s': must be table or json", outputFormat)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	timeout := cfg.ScanTimeout
	if scanDuration > 0 {
		timeout = scanDuration
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nCtrl+C pressed, cancelling scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	progress := newProgressPrinter("Scanning for BLE devices", "Scanning")
	progress.Start()
	defer progress.Stop()

	if err := engine.StartWatcher(); err != nil {
		return err
	}

	devices, err := engine.Scan(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}
	progress.Stop()

	return displayDevices(devices, outputFormat)
}

func displayDevices(devices []watcher.DeviceSummary, format string) error {
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Name < devices[j].Name
	})

	switch format {
	case "json":
		return displayDevicesJSON(devices)
	default:
		return displayDevicesTable(devices)
	}
}

func displayDevicesTable(devices []watcher.DeviceSummary) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS")
	fmt.Fprintln(w, strings.Repeat("-", 40))

	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\n", name, d.Address)
	}

	return w.Flush()
}

func displayDevicesJSON(devices []watcher.DeviceSummary) error {
	var w io.Writer = os.Stdout
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
