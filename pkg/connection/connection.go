// Package connection resolves discovered or raw BLE addresses into active
// connections and provides characteristic write and subscribe operations
// over a per-connection capability cache.
package connection

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/roambot/blecore/internal/bleid"
	"github.com/roambot/blecore/internal/platform"
)

// AddressLookup resolves a device address to its platform identifier via
// the discovery table. It reports false when the address was never
// discovered.
type AddressLookup func(address string) (id string, ok bool)

// Dialer resolves target devices into connections.
type Dialer struct {
	stack  platform.Stack
	lookup AddressLookup
	logger *logrus.Logger
}

// NewDialer creates a dialer. lookup may be nil, in which case every
// connect goes through the raw-address path.
func NewDialer(stack platform.Stack, lookup AddressLookup, logger *logrus.Logger) *Dialer {
	if logger == nil {
		logger = logrus.New()
	}

	return &Dialer{
		stack:  stack,
		lookup: lookup,
		logger: logger,
	}
}

// Connect resolves address into an active connection. An address present
// in the discovery table is resolved by its platform identifier; anything
// else is treated as a raw MAC string and resolved by numeric address,
// which also reaches devices the discovery filter excludes (e.g. ones
// already connected when the watcher started).
//
// The connection's characteristic cache is built eagerly here, once, and
// never refreshed.
func (d *Dialer) Connect(ctx context.Context, address string) (*Connection, error) {
	var (
		p   platform.Peripheral
		err error
	)

	if id, ok := d.lookupAddress(address); ok {
		d.logger.WithFields(logrus.Fields{
			"address": address,
			"id":      id,
		}).Debug("Resolving device from discovery table")
		p, err = d.stack.DeviceFromID(ctx, id)
	} else {
		d.logger.WithField("address", address).Debug("Resolving device by raw address")
		p, err = d.stack.DeviceFromAddress(ctx, bleid.AddressToUint(address))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve device %q: %w", address, err)
	}

	cache, err := buildCharacteristicCache(ctx, p)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	d.logger.WithFields(logrus.Fields{
		"address":         address,
		"characteristics": cache.Len(),
	}).Info("BLE device connected")

	return &Connection{
		peripheral: p,
		chars:      cache,
		logger:     d.logger,
	}, nil
}

func (d *Dialer) lookupAddress(address string) (string, bool) {
	if d.lookup == nil {
		return "", false
	}
	return d.lookup(address)
}

// buildCharacteristicCache enumerates every service and, per service,
// every characteristic, flattening the results. A non-success status at
// either step aborts the connect attempt.
func buildCharacteristicCache(ctx context.Context, p platform.Peripheral) (*orderedmap.OrderedMap[uuid.UUID, platform.Characteristic], error) {
	services, status, err := p.Services(ctx)
	if err != nil || status != platform.StatusSuccess {
		return nil, &ServiceDiscoveryError{Status: status, Err: err}
	}

	cache := orderedmap.New[uuid.UUID, platform.Characteristic]()
	for _, svc := range services {
		chars, status, err := svc.Characteristics(ctx)
		if err != nil || status != platform.StatusSuccess {
			return nil, &CharacteristicDiscoveryError{Service: svc.UUID(), Status: status, Err: err}
		}

		for _, c := range chars {
			// First occurrence wins when services expose the same UUID.
			if _, exists := cache.Get(c.UUID()); !exists {
				cache.Set(c.UUID(), c)
			}
		}
	}

	return cache, nil
}

// Connection is an active link to a peripheral with its immutable
// characteristic cache. It is safe for concurrent use.
type Connection struct {
	peripheral platform.Peripheral
	chars      *orderedmap.OrderedMap[uuid.UUID, platform.Characteristic]
	logger     *logrus.Logger

	mu     sync.Mutex
	closed bool

	writeMu sync.Mutex
}

// Characteristics returns the cached characteristic identifiers in
// discovery order.
func (c *Connection) Characteristics() []uuid.UUID {
	out := make([]uuid.UUID, 0, c.chars.Len())
	for pair := c.chars.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Write decodes the raw 16-byte identifier, locates the characteristic in
// the cache, and issues a write, blocking until the platform reports the
// outcome.
func (c *Connection) Write(ctx context.Context, identifier []byte, data []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	ch, id, err := c.find(identifier)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	status, err := ch.Write(ctx, data)
	if err != nil || status != platform.StatusSuccess {
		return &WriteError{UUID: id, Status: status, Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"uuid":  id,
		"bytes": len(data),
	}).Debug("Wrote to characteristic")
	return nil
}

// Subscribe enables value-change notifications on the characteristic and
// forwards every delivered value to handler. The handler runs on a
// platform goroutine with its own copy of the value and must not block.
// A nil handler makes Subscribe a no-op. Subscribing again to the same
// characteristic replaces the prior handler.
func (c *Connection) Subscribe(ctx context.Context, identifier []byte, handler func([]byte)) error {
	if handler == nil {
		return nil
	}
	if err := c.checkOpen(); err != nil {
		return err
	}

	ch, id, err := c.find(identifier)
	if err != nil {
		return err
	}

	deliver := func(value []byte) {
		owned := make([]byte, len(value))
		copy(owned, value)
		handler(owned)
	}

	status, err := ch.EnableNotifications(ctx, deliver)
	if err != nil || status != platform.StatusSuccess {
		return &NotifyError{UUID: id, Status: status, Err: err}
	}

	c.logger.WithField("uuid", id).Info("Subscribed to characteristic notifications")
	return nil
}

// Disconnect releases the underlying device handle. It is idempotent;
// subscriptions end with the connection.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.logger.Info("Disconnecting BLE device")
	return c.peripheral.Close()
}

// IsConnected reports whether Disconnect has not yet been called.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Connection) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrDisconnected
	}
	return nil
}

// find decodes a raw identifier and looks it up in the cache. No platform
// call is made when the identifier has no match.
func (c *Connection) find(identifier []byte) (platform.Characteristic, uuid.UUID, error) {
	id, err := bleid.UUIDFromBytes(identifier)
	if err != nil {
		return nil, uuid.Nil, err
	}

	ch, ok := c.chars.Get(id)
	if !ok {
		return nil, uuid.Nil, &CharacteristicNotFoundError{UUID: id}
	}
	return ch, id, nil
}
