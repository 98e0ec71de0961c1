package logger

import (
	"context"
	"log/slog"
	"time"
)

// Lockout audit event types
const (
	EventLoginSucceeded = "login_success"
	EventLoginFailed    = "login_failed"
	EventLoginDenied    = "lockout_denied"
	EventLockoutStarted = "lockout_started"
	EventLedgerError    = "ledger_error"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	Username      string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	FailureCount  int
	LockedUntil   time.Time
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// LogAuthAttempt logs a login outcome. Usernames are masked before they reach the log.
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.Username != "" {
		attrs = append(attrs, slog.String("username", SanitizedUsername(event.Username)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	if event.FailureCount > 0 {
		attrs = append(attrs, slog.Int("failure_count", event.FailureCount))
	}
	if !event.LockedUntil.IsZero() {
		attrs = append(attrs, slog.String("locked_until", event.LockedUntil.UTC().Format(time.RFC3339)))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelWarn
	if event.Success {
		level = slog.LevelInfo
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogLedgerError records a storage failure that the gate tolerated
func (al *AuditLogger) LogLedgerError(ctx context.Context, operation, username string, err error) {
	al.logger.LogAttrs(ctx, slog.LevelError, "audit",
		slog.String("audit_type", "lockout"),
		slog.String("event_type", EventLedgerError),
		slog.String("operation", operation),
		slog.String("username", SanitizedUsername(username)),
		slog.String("error", err.Error()),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	)
}
