package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/roambot/blecore/internal/bleid"
	"github.com/roambot/blecore/pkg/connection"
	"github.com/roambot/blecore/pkg/watcher"
)

// formatUserError rewrites engine errors into actionable messages. Errors
// it does not recognize pass through unchanged.
func formatUserError(err error) string {
	var (
		sde *connection.ServiceDiscoveryError
		cde *connection.CharacteristicDiscoveryError
		nfe *connection.CharacteristicNotFoundError
		we  *connection.WriteError
		ne  *connection.NotifyError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out; is the device powered on and in range?"
	case errors.Is(err, connection.ErrDisconnected):
		return "device is disconnected; reconnect and retry"
	case errors.Is(err, watcher.ErrNotStarted):
		return "device discovery has not been started"
	case errors.Is(err, watcher.ErrWatcherStopped):
		return "device discovery was stopped"
	case errors.Is(err, bleid.ErrBadIdentifierLength):
		return "characteristic identifier must be a full 128-bit UUID"
	case errors.As(err, &sde):
		return fmt.Sprintf("service discovery failed (%s); the device may have dropped the connection", sde.Status)
	case errors.As(err, &cde):
		return fmt.Sprintf("characteristic discovery failed for service %s (%s)", cde.Service, cde.Status)
	case errors.As(err, &nfe):
		return fmt.Sprintf("device has no characteristic %s", nfe.UUID)
	case errors.As(err, &we):
		return fmt.Sprintf("write to %s failed (%s)", we.UUID, we.Status)
	case errors.As(err, &ne):
		return fmt.Sprintf("could not enable notifications on %s (%s)", ne.UUID, ne.Status)
	default:
		return err.Error()
	}
}
