// Package goble implements the platform boundary on top of the go-ble
// BLE stack. Discovery add/update/remove events are synthesized from the
// advertisement stream, since go-ble reports advertisements rather than
// watcher-style device lifecycle events.
package goble

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/roambot/blecore/internal/platform"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
var DeviceFactory = func() (ble.Device, error) {
	return defaultDevice()
}

// Options tunes how the advertisement stream is mapped onto watcher
// semantics.
type Options struct {
	// EnumerationWindow is how long after Start the initial sweep of
	// nearby devices is considered complete.
	EnumerationWindow time.Duration

	// DeviceExpiry removes a device that has not advertised for this
	// long. Zero disables removal events.
	DeviceExpiry time.Duration
}

// DefaultOptions returns the default watcher mapping options.
func DefaultOptions() *Options {
	return &Options{
		EnumerationWindow: 5 * time.Second,
		DeviceExpiry:      30 * time.Second,
	}
}

// Stack is the go-ble backed platform.Stack.
type Stack struct {
	dev    ble.Device
	opts   Options
	logger *logrus.Logger
}

var _ platform.Stack = (*Stack)(nil)

// NewStack creates the platform stack, initializing the underlying BLE
// device via DeviceFactory.
func NewStack(logger *logrus.Logger, opts *Options) (*Stack, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	return &Stack{
		dev:    dev,
		opts:   *opts,
		logger: logger,
	}, nil
}

// NewWatcher creates a discovery watcher over the advertisement stream.
func (s *Stack) NewWatcher() (platform.Watcher, error) {
	return newAdvWatcher(s.dev, s.opts, s.logger), nil
}

// DeviceFromID resolves a connection from a platform identifier. With the
// go-ble backend the discovery identifier is the device address.
func (s *Stack) DeviceFromID(ctx context.Context, id string) (platform.Peripheral, error) {
	return s.dial(ctx, id)
}

// DeviceFromAddress resolves a connection directly from the 64-bit
// integer address form, reaching devices the watcher never observed.
func (s *Stack) DeviceFromAddress(ctx context.Context, addr uint64) (platform.Peripheral, error) {
	return s.dial(ctx, formatAddress(addr))
}

func (s *Stack) dial(ctx context.Context, address string) (platform.Peripheral, error) {
	s.logger.WithField("address", address).Info("Connecting to BLE device...")

	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, err)
	}

	return &peripheral{client: client, logger: s.logger}, nil
}

// formatAddress renders the low 48 bits of addr as a colon-delimited MAC.
func formatAddress(addr uint64) string {
	var b [6]byte
	for i := 5; i >= 0; i-- {
		b[i] = byte(addr)
		addr >>= 8
	}
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}
