package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roambot/blecore/internal/platform"
	"github.com/roambot/blecore/internal/platform/goble"
	"github.com/roambot/blecore/pkg/adapter"
	"github.com/roambot/blecore/pkg/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// stackFactory creates the platform stack (can be overridden in tests).
var stackFactory = func(logger *logrus.Logger, cfg *config.Config) (platform.Stack, error) {
	return goble.NewStack(logger, &goble.Options{
		EnumerationWindow: cfg.EnumerationWindow,
		DeviceExpiry:      cfg.DeviceExpiry,
	})
}

// loadConfig reads --config if given, otherwise returns defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// newEngine wires config, logger, and the platform stack into an adapter.
func newEngine(cmd *cobra.Command) (*adapter.Adapter, *config.Config, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	stack, err := stackFactory(logger, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize BLE stack: %w", err)
	}

	return adapter.New(stack, logger), cfg, logger, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blecore",
	Short: "BLE client engine CLI",
	Long: `Command-line frontend for the BLE client engine:

- Scan and list nearby BLE devices
- Write raw payloads to GATT characteristics
- Subscribe to characteristic notifications

Devices are addressed by their colon-delimited MAC address; characteristics
by their canonical UUID.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", formatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(subscribeCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
