//go:build integration

package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLockoutRepository(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	newRepo := func() (*LockoutRepository, *testClock) {
		clock := &testClock{now: time.Now().UTC().Truncate(time.Millisecond)}
		return NewLockoutRepository(db).WithClock(clock.Now), clock
	}

	t.Run("record and clear failures", func(t *testing.T) {
		repo, _ := newRepo()

		for want := 1; want <= 3; want++ {
			got, err := repo.RecordFailure(ctx, "alice", time.Hour)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		count, err := repo.FailureCount(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		require.NoError(t, repo.ClearFailures(ctx, "alice"))
		count, err = repo.FailureCount(ctx, "alice")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("expired counter restarts at one", func(t *testing.T) {
		repo, clock := newRepo()

		_, err := repo.RecordFailure(ctx, "bob", time.Hour)
		require.NoError(t, err)
		_, err = repo.RecordFailure(ctx, "bob", time.Hour)
		require.NoError(t, err)

		clock.Advance(61 * time.Minute)

		count, err := repo.FailureCount(ctx, "bob")
		require.NoError(t, err)
		assert.Zero(t, count)

		got, err := repo.RecordFailure(ctx, "bob", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, got)
	})

	t.Run("lockout is not extended while active", func(t *testing.T) {
		repo, clock := newRepo()

		first, err := repo.StartLockout(ctx, "carol", 30*time.Minute)
		require.NoError(t, err)

		clock.Advance(10 * time.Minute)
		second, err := repo.StartLockout(ctx, "carol", 30*time.Minute)
		require.NoError(t, err)
		assert.True(t, first.Equal(second))

		expiry, err := repo.LockoutExpiry(ctx, "carol")
		require.NoError(t, err)
		require.NotNil(t, expiry)
		assert.True(t, first.Equal(*expiry))

		clock.Advance(20 * time.Minute)
		expiry, err = repo.LockoutExpiry(ctx, "carol")
		require.NoError(t, err)
		assert.Nil(t, expiry)

		third, err := repo.StartLockout(ctx, "carol", 30*time.Minute)
		require.NoError(t, err)
		assert.True(t, third.After(first))
	})

	t.Run("concurrent failures are counted once each", func(t *testing.T) {
		repo, _ := newRepo()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.RecordFailure(ctx, "dave", time.Hour)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		count, err := repo.FailureCount(ctx, "dave")
		require.NoError(t, err)
		assert.Equal(t, 20, count)
	})

	t.Run("purge removes elapsed rows", func(t *testing.T) {
		repo, clock := newRepo()

		_, err := repo.RecordFailure(ctx, "erin", time.Minute)
		require.NoError(t, err)
		_, err = repo.StartLockout(ctx, "erin", time.Minute)
		require.NoError(t, err)

		clock.Advance(2 * time.Minute)
		purged, err := repo.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, purged, int64(2))
	})
}

func TestUserAndSettingsRepositories(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	users := NewUserRepository(db)
	created, err := users.Create(ctx, &models.User{Username: "frank", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	found, err := users.GetByUsername(ctx, "frank")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = users.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = users.Create(ctx, &models.User{Username: "frank", PasswordHash: "hash"})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	settings := NewSettingsRepository(db)
	require.NoError(t, settings.Set(ctx, "hide_version", true))
	require.NoError(t, settings.Set(ctx, "login_lockout", false))

	list, err := settings.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "hide_version", list[0].Name)
	assert.True(t, list[0].Enabled)
	assert.False(t, list[1].Enabled)
}
