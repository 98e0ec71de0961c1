package models

import "time"

// AttemptCounter counts consecutive failed logins for one username
type AttemptCounter struct {
	Username  string    `db:"username"`
	Failures  int       `db:"failures"`
	ExpiresAt time.Time `db:"expires_at"` // refreshed on every failure
}

// LockoutWindow blocks every login for a username until ExpiresAt
type LockoutWindow struct {
	Username  string    `db:"username"`
	StartedAt time.Time `db:"started_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Active reports whether the window still blocks logins at now
func (w *LockoutWindow) Active(now time.Time) bool {
	return w != nil && w.ExpiresAt.After(now)
}
