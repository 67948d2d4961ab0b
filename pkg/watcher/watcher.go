// Package watcher maintains the table of nearby BLE devices, driven by
// the platform's asynchronous add/update/remove discovery callbacks, and
// exposes a blocking Scan that waits for the initial enumeration to
// complete before snapshotting the table.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/roambot/blecore/internal/platform"
	"github.com/roambot/blecore/internal/ringchan"
)

// eventBufferSize bounds the discovery event stream; slow consumers lose
// the oldest events rather than stalling platform callbacks.
const eventBufferSize = 128

var (
	// ErrNotStarted is returned by Scan when the watcher was never started;
	// waiting for an enumeration signal that can't fire would block forever.
	ErrNotStarted = errors.New("watcher not started")

	// ErrWatcherStopped is returned by Scan calls woken (or issued) after
	// the watcher has been stopped.
	ErrWatcherStopped = errors.New("watcher stopped")
)

// DiscoveryError wraps a platform watcher setup failure.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery setup failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// State tracks the watcher lifecycle. Started covers the enumerating
// phase; EnumerationComplete is entered when the platform signals the end
// of the initial sweep; Stopped is terminal.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateEnumerationComplete
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateEnumerationComplete:
		return "enumeration complete"
	case StateStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// DeviceSummary is the per-device result of a Scan.
type DeviceSummary struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// EventType marks how a device entered the event stream.
type EventType int

const (
	EventAdded EventType = iota
	EventUpdated
	EventRemoved
)

// Event is a discovery table change, observable via Events.
type Event struct {
	Type      EventType
	Device    platform.DeviceInfo
	Timestamp time.Time
}

// entry is a discovery table slot. Updates mutate it in place, so reads
// and writes go through its lock; the table itself is a concurrent map.
type entry struct {
	mu   sync.Mutex
	info platform.DeviceInfo
}

func (e *entry) apply(u platform.DeviceUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if u.Name != nil {
		e.info.Name = *u.Name
	}
	if u.Address != nil {
		e.info.Address = *u.Address
	}
	if u.State != nil {
		e.info.State = *u.State
	}
}

func (e *entry) replace(info platform.DeviceInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.info = info
}

func (e *entry) snapshot() platform.DeviceInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info
}

// Watcher owns the discovery table and the platform watcher feeding it.
type Watcher struct {
	stack  platform.Stack
	logger *logrus.Logger

	mu    sync.Mutex
	state State
	pw    platform.Watcher

	devices *hashmap.Map[string, *entry]

	enumOnce sync.Once
	enumDone chan struct{}
	stopped  chan struct{}

	events *ringchan.Ring[Event]
}

// New creates a watcher over the given platform stack.
func New(stack platform.Stack, logger *logrus.Logger) *Watcher {
	if logger == nil {
		logger = logrus.New()
	}

	return &Watcher{
		stack:    stack,
		logger:   logger,
		devices:  hashmap.New[string, *entry](),
		enumDone: make(chan struct{}),
		stopped:  make(chan struct{}),
		events:   ringchan.New[Event](eventBufferSize),
	}
}

// Start registers the discovery callbacks and starts the platform
// watcher. It is a no-op if the watcher is already running; starting a
// stopped watcher is an error.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateStarted, StateEnumerationComplete:
		return nil
	case StateStopped:
		return ErrWatcherStopped
	}

	pw, err := w.stack.NewWatcher()
	if err != nil {
		return &DiscoveryError{Err: err}
	}

	handlers := platform.Handlers{
		Added:                w.onAdded,
		Updated:              w.onUpdated,
		Removed:              w.onRemoved,
		EnumerationCompleted: w.onEnumerationCompleted,
	}
	if err := pw.Start(handlers); err != nil {
		return &DiscoveryError{Err: err}
	}

	w.pw = pw
	w.state = StateStarted
	w.logger.Info("Device watcher started")
	return nil
}

// Stop deregisters the callbacks, stops the platform watcher, and wakes
// any Scan blocked on the enumeration signal with ErrWatcherStopped.
// Stop is terminal and idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return nil
	}
	w.state = StateStopped
	pw := w.pw
	w.pw = nil
	w.mu.Unlock()

	var err error
	if pw != nil {
		err = pw.Stop()
	}
	close(w.stopped)

	w.logger.Info("Device watcher stopped")
	return err
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Scan blocks until the platform signals that the initial device
// enumeration completed, then returns a snapshot of the discovery table.
// The signal stays set, so calls after the first completion return
// immediately. Cancellation or a deadline on ctx produces ctx.Err();
// stopping the watcher produces ErrWatcherStopped.
func (w *Watcher) Scan(ctx context.Context) ([]DeviceSummary, error) {
	w.mu.Lock()
	st := w.state
	w.mu.Unlock()

	if st == StateCreated {
		return nil, ErrNotStarted
	}

	// A stop that already happened wins over a completed enumeration.
	select {
	case <-w.stopped:
		return nil, ErrWatcherStopped
	default:
	}

	select {
	case <-w.enumDone:
	case <-w.stopped:
		return nil, ErrWatcherStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out := make([]DeviceSummary, 0, w.devices.Len())
	w.devices.Range(func(_ string, e *entry) bool {
		info := e.snapshot()
		out = append(out, DeviceSummary{Name: info.Name, Address: info.Address})
		return true
	})
	return out, nil
}

// LookupAddress finds the platform identifier of a discovered device by
// its address, for connection resolution.
func (w *Watcher) LookupAddress(address string) (string, bool) {
	var id string
	found := false

	w.devices.Range(func(key string, e *entry) bool {
		if e.snapshot().Address == address {
			id = key
			found = true
			return false
		}
		return true
	})
	return id, found
}

// Len returns the number of devices currently in the discovery table.
func (w *Watcher) Len() int {
	return w.devices.Len()
}

// Events returns the discovery event stream. The buffer is bounded; when
// a consumer falls behind, the oldest events are discarded.
func (w *Watcher) Events() <-chan Event {
	return w.events.C()
}

// onAdded inserts a device into the table. A duplicate add for a known id
// is treated as an idempotent upsert.
func (w *Watcher) onAdded(info platform.DeviceInfo) {
	e := &entry{info: info}
	existing, loaded := w.devices.GetOrInsert(info.ID, e)
	if loaded {
		existing.replace(info)
	} else {
		w.logger.WithFields(logrus.Fields{
			"device":  info.Name,
			"address": info.Address,
		}).Info("Discovered new device")
	}

	w.sendEvent(EventAdded, existing.snapshot())
}

// onUpdated applies an update in place. An update for an id never added
// is dropped: the platform referenced a device before we observed it.
func (w *Watcher) onUpdated(u platform.DeviceUpdate) {
	e, ok := w.devices.Get(u.ID)
	if !ok {
		w.logger.WithField("id", u.ID).Debug("Dropping update for unknown device")
		return
	}

	e.apply(u)
	w.sendEvent(EventUpdated, e.snapshot())
}

// onRemoved erases an entry; removal of an absent id is silently dropped.
func (w *Watcher) onRemoved(id string) {
	e, ok := w.devices.Get(id)
	if !ok {
		return
	}

	info := e.snapshot()
	w.devices.Del(id)
	w.logger.WithFields(logrus.Fields{
		"device":  info.Name,
		"address": info.Address,
	}).Debug("Device removed from discovery")

	w.sendEvent(EventRemoved, info)
}

// onEnumerationCompleted opens the scan latch. The platform fires this
// once per watcher lifetime; the latch stays open so repeated scans never
// block again.
func (w *Watcher) onEnumerationCompleted() {
	w.enumOnce.Do(func() {
		w.mu.Lock()
		if w.state == StateStarted {
			w.state = StateEnumerationComplete
		}
		w.mu.Unlock()

		close(w.enumDone)
		w.logger.WithField("device_count", w.devices.Len()).Info("Device enumeration completed")
	})
}

func (w *Watcher) sendEvent(t EventType, info platform.DeviceInfo) {
	w.events.Send(Event{Type: t, Device: info, Timestamp: time.Now()})
}
