package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockoutRepository is the Postgres attempt ledger. Row-level upserts make
// increments and lockout starts atomic per username across instances.
type LockoutRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{pool: db.Pool, now: time.Now}
}

// WithClock replaces the time source, for tests
func (r *LockoutRepository) WithClock(now func() time.Time) *LockoutRepository {
	r.now = now
	return r
}

// FailureCount returns the unexpired failure count for a username
func (r *LockoutRepository) FailureCount(ctx context.Context, username string) (int, error) {
	query := `
		SELECT failures FROM login_failures
		WHERE username = $1 AND expires_at > $2
	`

	var count int
	err := r.pool.QueryRow(ctx, query, username, r.now()).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// RecordFailure increments the counter in a single upsert, restarting at 1
// when the stored row had already expired
func (r *LockoutRepository) RecordFailure(ctx context.Context, username string, window time.Duration) (int, error) {
	query := `
		INSERT INTO login_failures (username, failures, expires_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (username) DO UPDATE SET
			failures = CASE
				WHEN login_failures.expires_at > $3 THEN login_failures.failures + 1
				ELSE 1
			END,
			expires_at = EXCLUDED.expires_at
		RETURNING failures
	`

	now := r.now()
	var count int
	if err := r.pool.QueryRow(ctx, query, username, now.Add(window), now).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// ClearFailures deletes the counter row
func (r *LockoutRepository) ClearFailures(ctx context.Context, username string) error {
	query := `DELETE FROM login_failures WHERE username = $1`

	if _, err := r.pool.Exec(ctx, query, username); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// LockoutExpiry returns the window expiry if it has not elapsed
func (r *LockoutRepository) LockoutExpiry(ctx context.Context, username string) (*time.Time, error) {
	query := `
		SELECT expires_at FROM lockout_windows
		WHERE username = $1 AND expires_at > $2
	`

	var expiry time.Time
	err := r.pool.QueryRow(ctx, query, username, r.now()).Scan(&expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &expiry, nil
}

// StartLockout inserts a window, or replaces one that has elapsed. When an
// active window already exists the upsert matches no row and the existing
// expiry is returned unchanged.
func (r *LockoutRepository) StartLockout(ctx context.Context, username string, duration time.Duration) (time.Time, error) {
	upsert := `
		INSERT INTO lockout_windows (username, started_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			expires_at = EXCLUDED.expires_at
		WHERE lockout_windows.expires_at <= EXCLUDED.started_at
		RETURNING expires_at
	`

	now := r.now()
	var expiry time.Time
	err := r.pool.QueryRow(ctx, upsert, username, now, now.Add(duration)).Scan(&expiry)
	if err == nil {
		return expiry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, database.MapPostgresError(err)
	}

	existing := `SELECT expires_at FROM lockout_windows WHERE username = $1`
	if err := r.pool.QueryRow(ctx, existing, username).Scan(&expiry); err != nil {
		return time.Time{}, database.MapPostgresError(err)
	}
	return expiry, nil
}

// PurgeExpired removes elapsed counters and windows
func (r *LockoutRepository) PurgeExpired(ctx context.Context) (int64, error) {
	now := r.now()

	failures, err := r.pool.Exec(ctx, `DELETE FROM login_failures WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	windows, err := r.pool.Exec(ctx, `DELETE FROM lockout_windows WHERE expires_at <= $1`, now)
	if err != nil {
		return failures.RowsAffected(), database.MapPostgresError(err)
	}

	return failures.RowsAffected() + windows.RowsAffected(), nil
}

// Ping checks connectivity
func (r *LockoutRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}
