package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential check errors. The lockout gate treats both the same way.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownUser        = fmt.Errorf("%w: unknown username", ErrInvalidCredentials)
	ErrIncorrectPassword  = fmt.Errorf("%w: incorrect password", ErrInvalidCredentials)

	// Lockout errors
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrStorageUnavailable = errors.New("attempt ledger unavailable")
	ErrInvalidInput       = errors.New("invalid input")
)

// DenialMessageFormat is the user-facing text shown while a username is locked out
const DenialMessageFormat = "Too many failed login attempts. Please try again in %d minutes."

// TooManyAttemptsError is returned by the lockout gate when a username is locked out.
// It is a result to render, not a fatal error.
type TooManyAttemptsError struct {
	Username         string
	Expiry           time.Time
	MinutesRemaining int
}

// NewTooManyAttemptsError builds the denial for a window expiring at expiry, as seen at now
func NewTooManyAttemptsError(username string, expiry, now time.Time) *TooManyAttemptsError {
	return &TooManyAttemptsError{
		Username:         username,
		Expiry:           expiry,
		MinutesRemaining: MinutesRemaining(expiry, now),
	}
}

func (e *TooManyAttemptsError) Error() string {
	return e.Message()
}

// Message returns the client-facing denial text
func (e *TooManyAttemptsError) Message() string {
	return DenialMessage(e.MinutesRemaining)
}

// Is lets errors.Is(err, ErrTooManyAttempts) match
func (e *TooManyAttemptsError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

// RetryAfter is the remaining lockout time rounded up to whole seconds, never below one
func (e *TooManyAttemptsError) RetryAfter(now time.Time) time.Duration {
	remaining := e.Expiry.Sub(now)
	if remaining < time.Second {
		return time.Second
	}
	if rem := remaining % time.Second; rem != 0 {
		remaining += time.Second - rem
	}
	return remaining
}

// MinutesRemaining is ceil((expiry-now)/60s), never below 1
func MinutesRemaining(expiry, now time.Time) int {
	seconds := expiry.Sub(now).Seconds()
	minutes := int(math.Ceil(seconds / 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// DenialMessage formats the lockout message for a number of minutes
func DenialMessage(minutes int) string {
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf(DenialMessageFormat, minutes)
}
