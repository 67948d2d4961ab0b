package connection

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roambot/blecore/internal/platform"
)

// ErrDisconnected indicates an operation on a connection that was already
// disconnected.
var ErrDisconnected = errors.New("connection closed")

// ServiceDiscoveryError reports a non-success status from GATT service
// enumeration during connect. Any single failure aborts the whole connect
// attempt; partial discovery is not tolerated.
type ServiceDiscoveryError struct {
	Status platform.Status
	Err    error
}

func (e *ServiceDiscoveryError) Error() string {
	return fmt.Sprintf("service discovery failed (%s): %v", e.Status, e.Err)
}

func (e *ServiceDiscoveryError) Unwrap() error { return e.Err }

// CharacteristicDiscoveryError reports a non-success status from
// characteristic enumeration of a single service during connect.
type CharacteristicDiscoveryError struct {
	Service uuid.UUID
	Status  platform.Status
	Err     error
}

func (e *CharacteristicDiscoveryError) Error() string {
	return fmt.Sprintf("characteristic discovery failed for service %s (%s): %v", e.Service, e.Status, e.Err)
}

func (e *CharacteristicDiscoveryError) Unwrap() error { return e.Err }

// CharacteristicNotFoundError reports an identifier with no match in the
// connection's characteristic cache. No platform call was made.
type CharacteristicNotFoundError struct {
	UUID uuid.UUID
}

func (e *CharacteristicNotFoundError) Error() string {
	return fmt.Sprintf("characteristic %s not found", e.UUID)
}

// WriteError reports a non-success status from a characteristic write.
type WriteError struct {
	UUID   uuid.UUID
	Status platform.Status
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to characteristic %s failed (%s): %v", e.UUID, e.Status, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// NotifyError reports a non-success status from enabling notifications on
// a characteristic.
type NotifyError struct {
	UUID   uuid.UUID
	Status platform.Status
	Err    error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("enabling notifications on characteristic %s failed (%s): %v", e.UUID, e.Status, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }
