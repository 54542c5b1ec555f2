package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Lock events recorded by MockDistributedLock.
const (
	LockAcquired = "acquire"
	LockReleased = "release"
	LockExtended = "extend"
	LockRefused  = "refused"
)

// MockDistributedLock keeps named locks in memory with their TTLs and
// records, per lock name, the order in which a sweep or scheduler tick
// took, extended and released it.
type MockDistributedLock struct {
	mu      sync.Mutex
	expiry  map[string]time.Time
	holders map[string]string
	events  map[string][]string

	AcquireFn func(name string, ttl time.Duration) (bool, error)
	ReleaseFn func(name string) error
	ExtendFn  func(name string, ttl time.Duration) error
	PingFn    func() error
}

func NewMockDistributedLock() *MockDistributedLock {
	m := &MockDistributedLock{}
	m.Reset()
	return m
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if m.AcquireFn != nil {
		ok, err := m.AcquireFn(name, ttl)
		if err == nil {
			m.record(name, acquireEvent(ok))
		}
		return ok, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.heldLocked(name) {
		m.events[name] = append(m.events[name], LockRefused)
		return false, nil
	}
	m.expiry[name] = time.Now().Add(ttl)
	m.holders[name] = "catalog"
	m.events[name] = append(m.events[name], LockAcquired)
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	if m.ReleaseFn != nil {
		if err := m.ReleaseFn(name); err != nil {
			return err
		}
		m.record(name, LockReleased)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expiry, name)
	delete(m.holders, name)
	m.events[name] = append(m.events[name], LockReleased)
	return nil
}

// Extend fails when the lock is not held by this process, like the token
// check of the redis lock.
func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	if m.ExtendFn != nil {
		if err := m.ExtendFn(name, ttl); err != nil {
			return err
		}
		m.record(name, LockExtended)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.heldLocked(name) || m.holders[name] != "catalog" {
		return fmt.Errorf("lock %s not held", name)
	}
	m.expiry[name] = time.Now().Add(ttl)
	m.events[name] = append(m.events[name], LockExtended)
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

// Reset drops every lock and the recorded history.
func (m *MockDistributedLock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry = make(map[string]time.Time)
	m.holders = make(map[string]string)
	m.events = make(map[string][]string)
}

// IsHeld reports whether name is held and not expired.
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heldLocked(name)
}

// SetLockHeld marks name as held by another process.
func (m *MockDistributedLock) SetLockHeld(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry[name] = time.Now().Add(ttl)
	m.holders[name] = "other"
}

// Events returns the recorded history of name, oldest first.
func (m *MockDistributedLock) Events(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events[name]...)
}

func (m *MockDistributedLock) record(name, event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[name] = append(m.events[name], event)
}

func (m *MockDistributedLock) heldLocked(name string) bool {
	exp, ok := m.expiry[name]
	return ok && time.Now().Before(exp)
}

func acquireEvent(ok bool) string {
	if ok {
		return LockAcquired
	}
	return LockRefused
}
