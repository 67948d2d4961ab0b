// Package adapter is the caller-facing surface of the BLE client engine:
// it ties the device watcher and the connection dialer together behind
// the start/scan/connect operations a robotics control library drives.
package adapter

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/roambot/blecore/internal/platform"
	"github.com/roambot/blecore/pkg/connection"
	"github.com/roambot/blecore/pkg/watcher"
)

// Adapter owns one device watcher, resolves connections against its
// discovery table, and tracks active connections by address so they can
// be released individually or together. Nothing is persisted.
type Adapter struct {
	watcher *watcher.Watcher
	dialer  *connection.Dialer
	logger  *logrus.Logger

	mu    sync.Mutex
	conns map[string]*connection.Connection
}

// New creates an adapter over the given platform stack.
func New(stack platform.Stack, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}

	w := watcher.New(stack, logger)
	return &Adapter{
		watcher: w,
		dialer:  connection.NewDialer(stack, w.LookupAddress, logger),
		logger:  logger,
		conns:   make(map[string]*connection.Connection),
	}
}

// StartWatcher begins device discovery. It is idempotent.
func (a *Adapter) StartWatcher() error {
	return a.watcher.Start()
}

// Scan blocks until the initial device enumeration completes, then
// returns the discovered devices. See watcher.Watcher.Scan for the
// cancellation and shutdown outcomes.
func (a *Adapter) Scan(ctx context.Context) ([]watcher.DeviceSummary, error) {
	return a.watcher.Scan(ctx)
}

// Connect resolves address (previously discovered or a raw MAC) into an
// active connection with an eagerly built characteristic cache. A second
// connect to an address with a live connection returns that connection.
func (a *Adapter) Connect(ctx context.Context, address string) (*connection.Connection, error) {
	a.mu.Lock()
	if conn, ok := a.conns[address]; ok && conn.IsConnected() {
		a.mu.Unlock()
		return conn, nil
	}
	a.mu.Unlock()

	conn, err := a.dialer.Connect(ctx, address)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.conns[address] = conn
	a.mu.Unlock()
	return conn, nil
}

// Disconnect releases the connection to address. Unknown or already
// disconnected addresses are a no-op.
func (a *Adapter) Disconnect(address string) error {
	a.mu.Lock()
	conn, ok := a.conns[address]
	delete(a.conns, address)
	a.mu.Unlock()

	if !ok {
		return nil
	}
	return conn.Disconnect()
}

// Events exposes the discovery event stream.
func (a *Adapter) Events() <-chan watcher.Event {
	return a.watcher.Events()
}

// Close stops the watcher, waking any blocked Scan, and disconnects all
// tracked connections.
func (a *Adapter) Close() error {
	err := a.watcher.Stop()

	a.mu.Lock()
	conns := a.conns
	a.conns = make(map[string]*connection.Connection)
	a.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Disconnect()
	}
	return err
}
