package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/repositories"
)

// CleanupManager periodically removes expired pending enrollments and
// stale rate limit counters.
type CleanupManager struct {
	enrollmentRepo repositories.PendingEnrollmentRepository
	rateLimitRepo  repositories.RateLimitRepository
	logger         *slog.Logger
	interval       time.Duration
	stopCh         chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	enrollmentRepo repositories.PendingEnrollmentRepository,
	rateLimitRepo repositories.RateLimitRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		enrollmentRepo: enrollmentRepo,
		rateLimitRepo:  rateLimitRepo,
		logger:         logger,
		interval:       interval,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()

	enrollments, err := cm.enrollmentRepo.DeleteExpired(cleanupCtx, now)
	if err != nil {
		cm.logger.Error("failed to delete expired enrollments", slog.Any("error", err))
	} else if enrollments > 0 {
		cm.logger.Info("expired enrollments removed", slog.Int64("rows_deleted", enrollments))
	}

	// Counters whose window started more than a day ago cannot affect
	// any current limit
	counters, err := cm.rateLimitRepo.DeleteStale(cleanupCtx, now.Add(-24*time.Hour))
	if err != nil {
		cm.logger.Error("failed to delete stale rate limit counters", slog.Any("error", err))
	} else if counters > 0 {
		cm.logger.Info("stale rate limit counters removed", slog.Int64("rows_deleted", counters))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
