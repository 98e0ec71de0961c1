// Package ledger holds the expiring stores behind the login lockout gate: an
// in-process store for single-instance deployments and a Redis store for
// deployments that share lockout state.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// MemoryLedger keeps attempt counters and lockout windows in process memory.
// One mutex serializes every operation, so increments and lockout starts are
// atomic per key.
type MemoryLedger struct {
	mu       sync.Mutex
	counters map[string]*models.AttemptCounter
	windows  map[string]*models.LockoutWindow
	now      func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		counters: make(map[string]*models.AttemptCounter),
		windows:  make(map[string]*models.LockoutWindow),
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests
func (l *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	l.now = now
	return l
}

// FailureCount returns the live failure count, 0 when absent or expired
func (l *MemoryLedger) FailureCount(ctx context.Context, username string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	counter, ok := l.counters[username]
	if !ok || !counter.ExpiresAt.After(l.now()) {
		return 0, nil
	}
	return counter.Failures, nil
}

// RecordFailure increments the counter, restarting at 1 if it had expired,
// and pushes its expiry out to now+window
func (l *MemoryLedger) RecordFailure(ctx context.Context, username string, window time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	counter, ok := l.counters[username]
	if !ok || !counter.ExpiresAt.After(now) {
		counter = &models.AttemptCounter{Username: username}
		l.counters[username] = counter
	}

	counter.Failures++
	counter.ExpiresAt = now.Add(window)
	return counter.Failures, nil
}

// ClearFailures drops the counter
func (l *MemoryLedger) ClearFailures(ctx context.Context, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.counters, username)
	return nil
}

// LockoutExpiry returns the expiry of an unelapsed window, or nil
func (l *MemoryLedger) LockoutExpiry(ctx context.Context, username string) (*time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	window, ok := l.windows[username]
	if !ok || !window.Active(l.now()) {
		return nil, nil
	}
	expiry := window.ExpiresAt
	return &expiry, nil
}

// StartLockout opens a window ending at now+duration. An already active window
// is left alone and its expiry returned, so racing failures cannot extend it.
func (l *MemoryLedger) StartLockout(ctx context.Context, username string, duration time.Duration) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if window, ok := l.windows[username]; ok && window.Active(now) {
		return window.ExpiresAt, nil
	}

	window := &models.LockoutWindow{
		Username:  username,
		StartedAt: now,
		ExpiresAt: now.Add(duration),
	}
	l.windows[username] = window
	return window.ExpiresAt, nil
}

// PurgeExpired drops elapsed counters and windows and reports how many went
func (l *MemoryLedger) PurgeExpired(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var purged int64
	for username, counter := range l.counters {
		if !counter.ExpiresAt.After(now) {
			delete(l.counters, username)
			purged++
		}
	}
	for username, window := range l.windows {
		if !window.Active(now) {
			delete(l.windows, username)
			purged++
		}
	}
	return purged, nil
}

// Ping always succeeds for the in-process store
func (l *MemoryLedger) Ping(ctx context.Context) error {
	return nil
}
