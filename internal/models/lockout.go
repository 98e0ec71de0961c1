package models

import "time"

// LockoutState is derived from the attempt ledger on every check, never stored
type LockoutState int

const (
	// StateClear: no failures counted and no active lockout window
	StateClear LockoutState = iota
	// StateAccumulating: failures recorded but below the maximum
	StateAccumulating
	// StateLockedOut: an unexpired lockout window exists
	StateLockedOut
)

func (s LockoutState) String() string {
	switch s {
	case StateClear:
		return "clear"
	case StateAccumulating:
		return "accumulating"
	case StateLockedOut:
		return "locked_out"
	default:
		return "unknown"
	}
}

// LockoutPolicy holds the lockout gate's tunables
type LockoutPolicy struct {
	MaxAttempts     int           // failures before a lockout starts
	LockoutDuration time.Duration // how long a lockout window lasts
	FailureWindow   time.Duration // how long a failure keeps counting, from the last failure
}

// DefaultLockoutPolicy returns 3 attempts, 30 minute lockouts, 60 minute failure window
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:     3,
		LockoutDuration: 30 * time.Minute,
		FailureWindow:   60 * time.Minute,
	}
}

// LockoutStatus is a point-in-time read of a username's ledger records
type LockoutStatus struct {
	Username     string
	State        LockoutState
	FailureCount int
	LockedUntil  *time.Time
}
