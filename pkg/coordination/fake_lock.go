package coordination

import (
	"context"
	"sync"
	"time"
)

// FakeLock is an in-process LockBackend for scheduler tests that shouldn't
// require a live Redis server. It only supports a single logical key, which
// matches the Scheduler's single master-election lock name.
type FakeLock struct {
	mu      sync.Mutex
	value   string
	expires time.Time
}

// NewFakeLock builds an empty, unheld lock.
func NewFakeLock() *FakeLock {
	return &FakeLock{}
}

func (l *FakeLock) Acquire(_ context.Context, _, value string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.value != "" && time.Now().Before(l.expires) {
		return false, nil
	}
	l.value = value
	l.expires = time.Now().Add(ttl)
	return true, nil
}

func (l *FakeLock) Value(_ context.Context, _ string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.value == "" || !time.Now().Before(l.expires) {
		return "", false, nil
	}
	return l.value, true, nil
}

func (l *FakeLock) Refresh(_ context.Context, _, value string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.value != value {
		return false, nil
	}
	l.expires = time.Now().Add(ttl)
	return true, nil
}

func (l *FakeLock) Release(_ context.Context, _, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.value == value {
		l.value = ""
	}
	return nil
}

// Expire forces the held lock to appear expired, for testing lock-loss
// transitions deterministically without sleeping.
func (l *FakeLock) Expire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expires = time.Now().Add(-time.Second)
}
