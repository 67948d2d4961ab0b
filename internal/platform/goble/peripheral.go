package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/roambot/blecore/internal/platform"
)

// bluetoothBaseSuffix completes a shortened 16- or 32-bit UUID to the
// Bluetooth base UUID.
const bluetoothBaseSuffix = "-0000-1000-8000-00805f9b34fb"

type peripheral struct {
	client ble.Client
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
}

func (p *peripheral) Services(_ context.Context) ([]platform.Service, platform.Status, error) {
	svcs, err := p.client.DiscoverServices(nil)
	if err != nil {
		return nil, platform.StatusProtocolError, fmt.Errorf("discover services: %w", err)
	}

	out := make([]platform.Service, 0, len(svcs))
	for _, svc := range svcs {
		out = append(out, &service{client: p.client, svc: svc, id: uuidFromBLE(svc.UUID)})
	}
	return out, platform.StatusSuccess, nil
}

func (p *peripheral) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.client.CancelConnection()
}

type service struct {
	client ble.Client
	svc    *ble.Service
	id     uuid.UUID
}

func (s *service) UUID() uuid.UUID { return s.id }

func (s *service) Characteristics(_ context.Context) ([]platform.Characteristic, platform.Status, error) {
	chars, err := s.client.DiscoverCharacteristics(nil, s.svc)
	if err != nil {
		return nil, platform.StatusProtocolError, fmt.Errorf("discover characteristics of %s: %w", s.id, err)
	}

	out := make([]platform.Characteristic, 0, len(chars))
	for _, c := range chars {
		out = append(out, &characteristic{client: s.client, char: c, id: uuidFromBLE(c.UUID)})
	}
	return out, platform.StatusSuccess, nil
}

type characteristic struct {
	client ble.Client
	char   *ble.Characteristic
	id     uuid.UUID

	mu         sync.Mutex
	handler    platform.NotificationHandler
	subscribed bool
}

func (c *characteristic) UUID() uuid.UUID { return c.id }

func (c *characteristic) Write(_ context.Context, data []byte) (platform.Status, error) {
	if err := c.client.WriteCharacteristic(c.char, data, false); err != nil {
		return platform.StatusProtocolError, fmt.Errorf("write characteristic %s: %w", c.id, err)
	}
	return platform.StatusSuccess, nil
}

// EnableNotifications subscribes once at the go-ble level and afterwards
// only swaps the delivered handler, so re-subscription replaces the prior
// registration instead of stacking a second one.
func (c *characteristic) EnableNotifications(_ context.Context, h platform.NotificationHandler) (platform.Status, error) {
	c.mu.Lock()
	c.handler = h
	if c.subscribed {
		c.mu.Unlock()
		return platform.StatusSuccess, nil
	}
	c.subscribed = true
	c.mu.Unlock()

	err := c.client.Subscribe(c.char, false, func(data []byte) {
		c.mu.Lock()
		deliver := c.handler
		c.mu.Unlock()
		if deliver != nil {
			deliver(data)
		}
	})
	if err != nil {
		c.mu.Lock()
		c.subscribed = false
		c.handler = nil
		c.mu.Unlock()
		return platform.StatusProtocolError, fmt.Errorf("enable notifications on %s: %w", c.id, err)
	}

	return platform.StatusSuccess, nil
}

// uuidFromBLE expands a go-ble UUID (16-, 32-, or 128-bit) to a full
// 128-bit UUID.
func uuidFromBLE(u ble.UUID) uuid.UUID {
	s := u.String()
	switch len(s) {
	case 4:
		s = "0000" + s + bluetoothBaseSuffix
	case 8:
		s = s + bluetoothBaseSuffix
	}

	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
