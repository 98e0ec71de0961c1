package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source shared by ledger tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryLedger_RecordAndClear(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	count, err := l.FailureCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	for want := 1; want <= 3; want++ {
		got, err := l.RecordFailure(ctx, "alice", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Keys are case-sensitive and independent
	count, _ = l.FailureCount(ctx, "Alice")
	assert.Equal(t, 0, count)

	require.NoError(t, l.ClearFailures(ctx, "alice"))
	count, _ = l.FailureCount(ctx, "alice")
	assert.Equal(t, 0, count)
}

func TestMemoryLedger_FailuresDecayAfterWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLedger().WithClock(clock.Now)

	_, _ = l.RecordFailure(ctx, "bob", time.Hour)
	clock.Advance(59 * time.Minute)
	count, _ := l.RecordFailure(ctx, "bob", time.Hour)
	assert.Equal(t, 2, count, "failure inside the window counts")

	// Each failure refreshes the window
	clock.Advance(61 * time.Minute)
	current, _ := l.FailureCount(ctx, "bob")
	assert.Equal(t, 0, current)

	count, _ = l.RecordFailure(ctx, "bob", time.Hour)
	assert.Equal(t, 1, count, "expired counter restarts at 1")
}

func TestMemoryLedger_LockoutExpiresExactly(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLedger().WithClock(clock.Now)

	start := clock.Now()
	expiry, err := l.StartLockout(ctx, "carol", 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, start.Add(30*time.Minute), expiry)

	clock.Advance(30*time.Minute - time.Second)
	got, err := l.LockoutExpiry(ctx, "carol")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, expiry, *got)

	clock.Advance(time.Second)
	got, err = l.LockoutExpiry(ctx, "carol")
	require.NoError(t, err)
	assert.Nil(t, got, "window is over at start+duration")
}

func TestMemoryLedger_StartLockoutDoesNotExtendActiveWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLedger().WithClock(clock.Now)

	first, _ := l.StartLockout(ctx, "dave", 30*time.Minute)
	clock.Advance(5 * time.Minute)
	second, _ := l.StartLockout(ctx, "dave", 30*time.Minute)
	assert.Equal(t, first, second)

	clock.Advance(26 * time.Minute)
	third, _ := l.StartLockout(ctx, "dave", 30*time.Minute)
	assert.Equal(t, clock.Now().Add(30*time.Minute), third, "elapsed window is replaced")
}

func TestMemoryLedger_ConcurrentStartLockoutSingleWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLedger().WithClock(clock.Now)

	const racers = 50
	results := make([]time.Time, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clock.Advance(time.Millisecond)
			results[i], _ = l.StartLockout(ctx, "erin", 30*time.Minute)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestMemoryLedger_ConcurrentRecordFailureIsAtomic(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	const racers = 100
	var wg sync.WaitGroup
	seen := make(chan int, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, _ := l.RecordFailure(ctx, "frank", time.Hour)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int]bool)
	for n := range seen {
		assert.False(t, unique[n], "count %d handed out twice", n)
		unique[n] = true
	}
	count, _ := l.FailureCount(ctx, "frank")
	assert.Equal(t, racers, count)
}

func TestMemoryLedger_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMemoryLedger().WithClock(clock.Now)

	_, _ = l.RecordFailure(ctx, "gina", time.Hour)
	_, _ = l.StartLockout(ctx, "gina", 30*time.Minute)
	_, _ = l.RecordFailure(ctx, "hank", 3*time.Hour)

	clock.Advance(2 * time.Hour)
	purged, err := l.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	count, _ := l.FailureCount(ctx, "hank")
	assert.Equal(t, 1, count)
	assert.NoError(t, l.Ping(ctx))
}
