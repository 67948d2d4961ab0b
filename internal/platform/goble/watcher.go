package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/roambot/blecore/internal/platform"
)

// advWatcher maps go-ble's advertisement stream onto watcher semantics:
// the first advertisement from an address becomes an add-event, later
// ones become update-events, silence beyond DeviceExpiry becomes a
// remove-event, and EnumerationCompleted fires once the enumeration
// window has elapsed after Start.
type advWatcher struct {
	dev    ble.Device
	opts   Options
	logger *logrus.Logger

	mu       sync.Mutex
	handlers platform.Handlers
	lastSeen map[string]time.Time
	cancel   context.CancelFunc
	started  bool
}

func newAdvWatcher(dev ble.Device, opts Options, logger *logrus.Logger) *advWatcher {
	return &advWatcher{
		dev:    dev,
		opts:   opts,
		logger: logger,
	}
}

func (w *advWatcher) Start(h platform.Handlers) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.started = true
	w.handlers = h
	w.lastSeen = make(map[string]time.Time)

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.mu.Unlock()

	go w.scanLoop(ctx)
	go w.expiryLoop(ctx)

	time.AfterFunc(w.opts.EnumerationWindow, func() {
		w.mu.Lock()
		done := w.handlers.EnumerationCompleted
		w.mu.Unlock()
		if done != nil {
			done()
		}
	})

	return nil
}

func (w *advWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}
	w.started = false
	w.cancel()

	// Deregister so a late advertisement on the scan goroutine is dropped.
	w.handlers = platform.Handlers{}
	w.lastSeen = nil

	return nil
}

func (w *advWatcher) scanLoop(ctx context.Context) {
	err := w.dev.Scan(ctx, true, w.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		w.logger.WithError(err).Warn("BLE advertisement scan terminated")
	}
}

func (w *advWatcher) handleAdvertisement(adv ble.Advertisement) {
	id := adv.Addr().String()
	name := adv.LocalName()

	w.mu.Lock()
	if w.lastSeen == nil {
		w.mu.Unlock()
		return
	}

	_, known := w.lastSeen[id]
	w.lastSeen[id] = time.Now()
	added, updated := w.handlers.Added, w.handlers.Updated
	w.mu.Unlock()

	if !known {
		if added != nil {
			added(platform.DeviceInfo{
				ID:      id,
				Name:    name,
				Address: id,
				State:   platform.StateDisconnected,
			})
		}
		return
	}

	// Only the name can change in an advertisement, and an empty local
	// name is not an update.
	if updated != nil && name != "" {
		updated(platform.DeviceUpdate{ID: id, Name: &name})
	}
}

func (w *advWatcher) expiryLoop(ctx context.Context) {
	if w.opts.DeviceExpiry <= 0 {
		return
	}

	ticker := time.NewTicker(w.opts.DeviceExpiry / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepExpired()
		}
	}
}

func (w *advWatcher) sweepExpired() {
	var expired []string

	w.mu.Lock()
	removed := w.handlers.Removed
	for id, last := range w.lastSeen {
		if time.Since(last) > w.opts.DeviceExpiry {
			delete(w.lastSeen, id)
			expired = append(expired, id)
		}
	}
	w.mu.Unlock()

	if removed == nil {
		return
	}
	for _, id := range expired {
		w.logger.WithField("device", id).Debug("Device expired from discovery")
		removed(id)
	}
}
