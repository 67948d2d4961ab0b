// Package platform defines the boundary between the BLE client engine and
// the OS BLE stack. The engine only depends on these interfaces; real
// backends (internal/platform/goble) and test fakes implement them.
//
// Discovery callbacks and notification handlers are invoked on
// platform-owned goroutines, never on the caller's goroutine. Every other
// operation blocks the calling goroutine until the platform resolves it.
package platform

import (
	"context"

	"github.com/google/uuid"
)

// ConnectionState is a device's connection status as reported by the
// platform during discovery.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnected
	StateUnknown
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a nearby device as delivered by a discovery
// add-event. ID is the opaque platform identifier; Address is the
// platform's address property (colon-delimited MAC or vendor form).
type DeviceInfo struct {
	ID      string
	Name    string
	Address string
	State   ConnectionState
}

// DeviceUpdate carries the changed properties of a previously reported
// device. Nil fields were not part of the update.
type DeviceUpdate struct {
	ID      string
	Name    *string
	Address *string
	State   *ConnectionState
}

// Handlers receives discovery watcher events. All callbacks run on
// platform goroutines and must not block.
type Handlers struct {
	Added                func(DeviceInfo)
	Updated              func(DeviceUpdate)
	Removed              func(id string)
	EnumerationCompleted func()
}

// Watcher is the platform's asynchronous device discovery facility.
type Watcher interface {
	// Start registers the handlers and begins discovery. The
	// EnumerationCompleted callback fires once the initial sweep of
	// already-nearby devices has been delivered.
	Start(h Handlers) error

	// Stop deregisters the handlers and halts discovery. No callbacks
	// are delivered after Stop returns.
	Stop() error
}

// Status mirrors the platform's GATT communication status codes.
type Status int

const (
	StatusSuccess Status = iota
	StatusUnreachable
	StatusProtocolError
	StatusAccessDenied
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnreachable:
		return "unreachable"
	case StatusProtocolError:
		return "protocol error"
	case StatusAccessDenied:
		return "access denied"
	default:
		return "unknown status"
	}
}

// NotificationHandler receives a characteristic's new value. The slice is
// only valid for the duration of the call; implementations of
// Characteristic may reuse the buffer.
type NotificationHandler func(value []byte)

// Characteristic is a live GATT characteristic handle on a connected
// peripheral.
type Characteristic interface {
	UUID() uuid.UUID

	// Write sends data to the characteristic and blocks until the
	// platform reports an outcome.
	Write(ctx context.Context, data []byte) (Status, error)

	// EnableNotifications performs the client-configuration descriptor
	// write that turns on value-change notifications and registers h as
	// the value-changed handler. A subsequent call replaces the prior
	// handler; the platform keeps at most one per characteristic.
	EnableNotifications(ctx context.Context, h NotificationHandler) (Status, error)
}

// Service is a GATT service handle.
type Service interface {
	UUID() uuid.UUID
	Characteristics(ctx context.Context) ([]Characteristic, Status, error)
}

// Peripheral is a connected device handle. Close releases it; a closed
// Peripheral must not be used again.
type Peripheral interface {
	Services(ctx context.Context) ([]Service, Status, error)
	Close() error
}

// Stack is the platform BLE stack: it creates discovery watchers and
// resolves device handles either from a previously discovered platform id
// or directly from a 64-bit address.
type Stack interface {
	NewWatcher() (Watcher, error)
	DeviceFromID(ctx context.Context, id string) (Peripheral, error)
	DeviceFromAddress(ctx context.Context, addr uint64) (Peripheral, error)
}
