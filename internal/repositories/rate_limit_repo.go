package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/database"
)

// RateLimitRepository persists fixed-window counters used for
// application-level throttling that must survive restarts.
type RateLimitRepository interface {
	IncrementWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
	DeleteStale(ctx context.Context, olderThan time.Time) (int64, error)
}

type rateLimitRepo struct {
	db *database.DB
}

// NewRateLimitRepository creates a new rate limit repository
func NewRateLimitRepository(db *database.DB) RateLimitRepository {
	return &rateLimitRepo{db: db}
}

// IncrementWindow atomically bumps the counter for a key and returns the
// new count. When the stored window has lapsed the counter restarts at 1.
// The upsert keeps concurrent callers consistent without an explicit lock.
func (r *rateLimitRepo) IncrementWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	windowFloor := now.Add(-window)

	query := `
		INSERT INTO rate_limit_counters (key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN rate_limit_counters.window_start <= $3 THEN 1
				ELSE rate_limit_counters.count + 1
			END,
			window_start = CASE
				WHEN rate_limit_counters.window_start <= $3 THEN $2
				ELSE rate_limit_counters.window_start
			END
		RETURNING count
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, key, now, windowFloor).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return count, nil
}

// DeleteStale removes counters whose window started before the cutoff
func (r *rateLimitRepo) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM rate_limit_counters WHERE window_start < $1`, olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale rate limit counters: %w", err)
	}

	return tag.RowsAffected(), nil
}
