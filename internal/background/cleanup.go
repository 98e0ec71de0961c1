package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger deletes ledger records whose TTL has elapsed
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically purges expired failure counters and lockout
// windows from ledgers that do not expire records on their own
type CleanupManager struct {
	purger   Purger
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(purger Purger, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		purger:   purger,
		logger:   logger,
		interval: interval,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a purge immediately and then every interval until ctx is done
// or Stop is called. It always returns nil so it can run under an errgroup.
func (cm *CleanupManager) Start(ctx context.Context) error {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return nil
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return nil
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	purged, err := cm.purger.PurgeExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge expired ledger records", slog.Any("error", err))
		return
	}

	if purged > 0 {
		cm.logger.Info("expired ledger records purged", slog.Int64("records_deleted", purged))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
