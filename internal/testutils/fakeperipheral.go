package testutils

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/roambot/blecore/internal/platform"
)

// FakePeripheral implements platform.Peripheral with builder-style setup:
//
//	p := testutils.NewFakePeripheral().
//		WithService("22bb746f-2bb0-7554-2d6f-726568705327",
//			testutils.NewFakeCharacteristic("22bb746f-2ba1-7554-2d6f-726568705327"))
type FakePeripheral struct {
	mu       sync.Mutex
	services []*FakeService
	closes   int

	// ServicesStatus and ServicesErr override the outcome of Services.
	ServicesStatus platform.Status
	ServicesErr    error
}

var _ platform.Peripheral = (*FakePeripheral)(nil)

func NewFakePeripheral() *FakePeripheral {
	return &FakePeripheral{ServicesStatus: platform.StatusSuccess}
}

// WithService appends a service with the given UUID string and
// characteristics.
func (p *FakePeripheral) WithService(id string, chars ...*FakeCharacteristic) *FakePeripheral {
	p.services = append(p.services, &FakeService{
		id:     uuid.MustParse(id),
		chars:  chars,
		Status: platform.StatusSuccess,
	})
	return p
}

// WithFailingService appends a service whose characteristic enumeration
// fails with the given status.
func (p *FakePeripheral) WithFailingService(id string, status platform.Status) *FakePeripheral {
	p.services = append(p.services, &FakeService{
		id:     uuid.MustParse(id),
		Status: status,
	})
	return p
}

// Service returns the i-th configured service, for test wiring.
func (p *FakePeripheral) Service(i int) *FakeService {
	return p.services[i]
}

func (p *FakePeripheral) Services(_ context.Context) ([]platform.Service, platform.Status, error) {
	if p.ServicesErr != nil || p.ServicesStatus != platform.StatusSuccess {
		return nil, p.ServicesStatus, p.ServicesErr
	}

	out := make([]platform.Service, 0, len(p.services))
	for _, s := range p.services {
		out = append(out, s)
	}
	return out, platform.StatusSuccess, nil
}

func (p *FakePeripheral) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

// Closes counts Close invocations, for idempotence checks.
func (p *FakePeripheral) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// FakeService implements platform.Service.
type FakeService struct {
	id    uuid.UUID
	chars []*FakeCharacteristic

	Status platform.Status
	Err    error
}

var _ platform.Service = (*FakeService)(nil)

func (s *FakeService) UUID() uuid.UUID { return s.id }

func (s *FakeService) Characteristics(_ context.Context) ([]platform.Characteristic, platform.Status, error) {
	if s.Err != nil || s.Status != platform.StatusSuccess {
		return nil, s.Status, s.Err
	}

	out := make([]platform.Characteristic, 0, len(s.chars))
	for _, c := range s.chars {
		out = append(out, c)
	}
	return out, platform.StatusSuccess, nil
}

// FakeCharacteristic implements platform.Characteristic, recording writes
// and letting tests push notification values at the registered handler.
type FakeCharacteristic struct {
	id uuid.UUID

	mu            sync.Mutex
	writes        [][]byte
	handler       platform.NotificationHandler
	notifyEnables int

	// WriteStatus / WriteErr override the write outcome; NotifyStatus /
	// NotifyErr override notification enabling.
	WriteStatus  platform.Status
	WriteErr     error
	NotifyStatus platform.Status
	NotifyErr    error
}

var _ platform.Characteristic = (*FakeCharacteristic)(nil)

func NewFakeCharacteristic(id string) *FakeCharacteristic {
	return &FakeCharacteristic{
		id:           uuid.MustParse(id),
		WriteStatus:  platform.StatusSuccess,
		NotifyStatus: platform.StatusSuccess,
	}
}

func (c *FakeCharacteristic) UUID() uuid.UUID { return c.id }

func (c *FakeCharacteristic) Write(_ context.Context, data []byte) (platform.Status, error) {
	if c.WriteErr != nil || c.WriteStatus != platform.StatusSuccess {
		return c.WriteStatus, c.WriteErr
	}

	owned := make([]byte, len(data))
	copy(owned, data)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, owned)
	return platform.StatusSuccess, nil
}

func (c *FakeCharacteristic) EnableNotifications(_ context.Context, h platform.NotificationHandler) (platform.Status, error) {
	if c.NotifyErr != nil || c.NotifyStatus != platform.StatusSuccess {
		return c.NotifyStatus, c.NotifyErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	c.notifyEnables++
	return platform.StatusSuccess, nil
}

// PushValue delivers a notification value to the registered handler, the
// way a platform callback goroutine would. The same slice is handed to
// the handler, so buffer-copy behavior upstream is observable.
func (c *FakeCharacteristic) PushValue(value []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h(value)
	}
}

// Writes returns the recorded write payloads.
func (c *FakeCharacteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// NotifyEnables counts how many times notifications were enabled.
func (c *FakeCharacteristic) NotifyEnables() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifyEnables
}

// HasHandler reports whether a notification handler is registered.
func (c *FakeCharacteristic) HasHandler() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}
