package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/settings"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// AttemptLedger is the expiring store behind the lockout gate. Every backend
// must make RecordFailure and StartLockout atomic per username.
type AttemptLedger interface {
	FailureCount(ctx context.Context, username string) (int, error)
	RecordFailure(ctx context.Context, username string, window time.Duration) (int, error)
	ClearFailures(ctx context.Context, username string) error
	LockoutExpiry(ctx context.Context, username string) (*time.Time, error)
	StartLockout(ctx context.Context, username string, duration time.Duration) (time.Time, error)
}

// Authenticator verifies a username and credential
type Authenticator interface {
	Authenticate(ctx context.Context, username, credential string) (*models.User, error)
}

// FeatureSettings is the read side of the hardening toggles
type FeatureSettings interface {
	Get(name string) bool
}

// Classify derives the lockout state from ledger contents. An active window
// wins over the counter; an elapsed one counts as absent. A counter at or past
// the limit without a window is still Accumulating, so the next failure
// starts the window.
func Classify(failureCount int, lockoutExpiry *time.Time, now time.Time) models.LockoutState {
	if lockoutExpiry != nil && lockoutExpiry.After(now) {
		return models.StateLockedOut
	}
	if failureCount > 0 {
		return models.StateAccumulating
	}
	return models.StateClear
}

// LockoutGate wraps an Authenticator with per-username failure counting and
// temporary lockout. Ledger failures never block a login.
type LockoutGate struct {
	ledger      AttemptLedger
	next        Authenticator
	settings    FeatureSettings
	policy      models.LockoutPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewLockoutGate creates a new LockoutGate
func NewLockoutGate(ledger AttemptLedger, next Authenticator, features FeatureSettings, policy models.LockoutPolicy, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LockoutGate {
	return &LockoutGate{
		ledger:      ledger,
		next:        next,
		settings:    features,
		policy:      policy,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// WithClock replaces the time source, for tests
func (g *LockoutGate) WithClock(now func() time.Time) *LockoutGate {
	g.now = now
	return g
}

// Enabled reports whether the login_lockout toggle is on
func (g *LockoutGate) Enabled() bool {
	return g.settings.Get(settings.LoginLockout)
}

// Authenticate runs the credential check unless username is locked out.
// A lockout is reported as *models.TooManyAttemptsError; every other error
// comes from the wrapped Authenticator unchanged.
func (g *LockoutGate) Authenticate(ctx context.Context, username, credential string) (*models.User, error) {
	if !g.Enabled() || username == "" {
		return g.next.Authenticate(ctx, username, credential)
	}

	status := g.status(ctx, username)
	if status.State == models.StateLockedOut {
		denial := models.NewTooManyAttemptsError(username, *status.LockedUntil, g.now())
		g.logger.Info("login denied: locked out",
			slog.String("username", pkglogger.SanitizedUsername(username)),
			slog.Int("minutes_remaining", denial.MinutesRemaining))
		g.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginDenied,
			Username:      username,
			FailureReason: "locked_out",
			LockedUntil:   denial.Expiry,
		})
		return nil, denial
	}

	user, err := g.next.Authenticate(ctx, username, credential)
	if err == nil {
		if clearErr := g.ledger.ClearFailures(ctx, username); clearErr != nil {
			g.ledgerUnavailable(ctx, "clear_failures", username, clearErr)
		}
		g.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventLoginSucceeded,
			Username:  username,
			Success:   true,
		})
		return user, nil
	}

	if !isCredentialFailure(err) {
		return nil, err
	}

	return nil, g.recordFailure(ctx, username, err)
}

// recordFailure counts a rejected credential and starts a lockout once the
// limit is reached. It returns the error to surface to the caller.
func (g *LockoutGate) recordFailure(ctx context.Context, username string, credentialErr error) error {
	count, err := g.ledger.RecordFailure(ctx, username, g.policy.FailureWindow)
	if err != nil {
		g.ledgerUnavailable(ctx, "record_failure", username, err)
		return credentialErr
	}

	if count < g.policy.MaxAttempts {
		if denial := g.lockedDuringCheck(ctx, username); denial != nil {
			return denial
		}
		g.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginFailed,
			Username:      username,
			FailureReason: "invalid_credentials",
			FailureCount:  count,
		})
		return credentialErr
	}

	expiry, err := g.ledger.StartLockout(ctx, username, g.policy.LockoutDuration)
	if err != nil {
		g.ledgerUnavailable(ctx, "start_lockout", username, err)
		return credentialErr
	}

	// The window replaces the counter; failures after it expires start from zero.
	if err := g.ledger.ClearFailures(ctx, username); err != nil {
		g.ledgerUnavailable(ctx, "clear_failures", username, err)
	}

	denial := models.NewTooManyAttemptsError(username, expiry, g.now())
	g.logger.Warn("lockout started",
		slog.String("username", pkglogger.SanitizedUsername(username)),
		slog.Int("failure_count", count),
		slog.Time("locked_until", expiry))
	g.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLockoutStarted,
		Username:      username,
		FailureReason: "max_attempts_reached",
		FailureCount:  count,
		LockedUntil:   expiry,
	})
	return denial
}

// lockedDuringCheck handles a failure that raced a lockout started by another
// request while the credential check was running. The window already covers
// the failure, so its counter increment is dropped and the caller is denied.
func (g *LockoutGate) lockedDuringCheck(ctx context.Context, username string) *models.TooManyAttemptsError {
	expiry, err := g.ledger.LockoutExpiry(ctx, username)
	if err != nil {
		g.ledgerUnavailable(ctx, "lockout_expiry", username, err)
		return nil
	}
	if Classify(0, expiry, g.now()) != models.StateLockedOut {
		return nil
	}

	if err := g.ledger.ClearFailures(ctx, username); err != nil {
		g.ledgerUnavailable(ctx, "clear_failures", username, err)
	}

	denial := models.NewTooManyAttemptsError(username, *expiry, g.now())
	g.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLoginDenied,
		Username:      username,
		FailureReason: "locked_out",
		LockedUntil:   denial.Expiry,
	})
	return denial
}

// Status reads the ledger and classifies username without side effects
func (g *LockoutGate) Status(ctx context.Context, username string) models.LockoutStatus {
	if username == "" {
		return models.LockoutStatus{State: models.StateClear}
	}
	return g.status(ctx, username)
}

func (g *LockoutGate) status(ctx context.Context, username string) models.LockoutStatus {
	expiry, err := g.ledger.LockoutExpiry(ctx, username)
	if err != nil {
		g.ledgerUnavailable(ctx, "lockout_expiry", username, err)
		expiry = nil
	}

	count, err := g.ledger.FailureCount(ctx, username)
	if err != nil {
		g.ledgerUnavailable(ctx, "failure_count", username, err)
		count = 0
	}

	state := Classify(count, expiry, g.now())
	if state != models.StateLockedOut {
		expiry = nil
	}

	return models.LockoutStatus{
		Username:     username,
		State:        state,
		FailureCount: count,
		LockedUntil:  expiry,
	}
}

func (g *LockoutGate) ledgerUnavailable(ctx context.Context, operation, username string, err error) {
	g.logger.Error("ledger unavailable, failing open",
		slog.String("operation", operation),
		slog.Any("error", err))
	g.auditLogger.LogLedgerError(ctx, operation, username, err)
}

func isCredentialFailure(err error) bool {
	return errors.Is(err, models.ErrInvalidCredentials) || errors.Is(err, models.ErrUnauthorized)
}
