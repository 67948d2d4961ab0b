// Package testutils provides a fake platform BLE stack for exercising the
// engine without hardware: a scriptable discovery watcher and buildable
// peripherals with controllable GATT outcomes.
package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/roambot/blecore/internal/platform"
)

// FakeStack implements platform.Stack. Peripherals are registered up
// front by platform id or by numeric address; discovery events are driven
// by the embedded FakeWatcher.
type FakeStack struct {
	Watcher *FakeWatcher

	// WatcherErr makes NewWatcher fail, for discovery setup error paths.
	WatcherErr error

	mu     sync.Mutex
	byID   map[string]*FakePeripheral
	byAddr map[uint64]*FakePeripheral

	idResolves   int
	addrResolves int
}

var _ platform.Stack = (*FakeStack)(nil)

// NewFakeStack creates an empty fake stack.
func NewFakeStack() *FakeStack {
	return &FakeStack{
		Watcher: NewFakeWatcher(),
		byID:    make(map[string]*FakePeripheral),
		byAddr:  make(map[uint64]*FakePeripheral),
	}
}

// RegisterByID makes p resolvable through the discovered-device path.
func (s *FakeStack) RegisterByID(id string, p *FakePeripheral) *FakeStack {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = p
	return s
}

// RegisterByAddress makes p resolvable through the raw-address path.
func (s *FakeStack) RegisterByAddress(addr uint64, p *FakePeripheral) *FakeStack {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAddr[addr] = p
	return s
}

func (s *FakeStack) NewWatcher() (platform.Watcher, error) {
	if s.WatcherErr != nil {
		return nil, s.WatcherErr
	}
	return s.Watcher, nil
}

func (s *FakeStack) DeviceFromID(_ context.Context, id string) (platform.Peripheral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idResolves++
	p, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("no device with id %q", id)
	}
	return p, nil
}

func (s *FakeStack) DeviceFromAddress(_ context.Context, addr uint64) (platform.Peripheral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addrResolves++
	p, ok := s.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("no device with address %#x", addr)
	}
	return p, nil
}

// IDResolves counts DeviceFromID calls.
func (s *FakeStack) IDResolves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idResolves
}

// AddressResolves counts DeviceFromAddress calls.
func (s *FakeStack) AddressResolves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrResolves
}

// FakeWatcher implements platform.Watcher. Tests drive the registered
// handlers through the Emit methods, simulating platform callback
// goroutines.
type FakeWatcher struct {
	mu         sync.Mutex
	handlers   platform.Handlers
	startCalls int
	stopCalls  int
	running    bool
}

var _ platform.Watcher = (*FakeWatcher)(nil)

func NewFakeWatcher() *FakeWatcher {
	return &FakeWatcher{}
}

func (w *FakeWatcher) Start(h platform.Handlers) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.startCalls++
	w.handlers = h
	w.running = true
	return nil
}

func (w *FakeWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopCalls++
	w.handlers = platform.Handlers{}
	w.running = false
	return nil
}

// StartCalls counts Start invocations, for idempotence checks.
func (w *FakeWatcher) StartCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startCalls
}

// StopCalls counts Stop invocations.
func (w *FakeWatcher) StopCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopCalls
}

// Running reports whether Start has been called without a following Stop.
func (w *FakeWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// EmitAdded delivers an add-event to the registered handler.
func (w *FakeWatcher) EmitAdded(info platform.DeviceInfo) {
	if h := w.added(); h != nil {
		h(info)
	}
}

// EmitUpdated delivers an update-event.
func (w *FakeWatcher) EmitUpdated(u platform.DeviceUpdate) {
	if h := w.updated(); h != nil {
		h(u)
	}
}

// EmitRemoved delivers a remove-event.
func (w *FakeWatcher) EmitRemoved(id string) {
	if h := w.removed(); h != nil {
		h(id)
	}
}

// CompleteEnumeration fires the enumeration-completed callback.
func (w *FakeWatcher) CompleteEnumeration() {
	w.mu.Lock()
	h := w.handlers.EnumerationCompleted
	w.mu.Unlock()
	if h != nil {
		h()
	}
}

func (w *FakeWatcher) added() func(platform.DeviceInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handlers.Added
}

func (w *FakeWatcher) updated() func(platform.DeviceUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handlers.Updated
}

func (w *FakeWatcher) removed() func(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handlers.Removed
}
