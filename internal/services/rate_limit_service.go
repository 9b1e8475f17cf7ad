package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/models"
	"github.com/John-CFO/chronocraft-api/internal/repositories"
)

// RateLimitService enforces fixed-window request caps backed by the
// database, so limits hold across restarts and multiple instances.
type RateLimitService struct {
	repo   repositories.RateLimitRepository
	logger *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(repo repositories.RateLimitRepository, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		repo:   repo,
		logger: logger,
	}
}

// CheckAndIncrement counts this request against the key's window and
// returns models.ErrRateLimited once the cap is exceeded. A storage
// error does not block the caller; the limit simply is not enforced
// for that request.
func (s *RateLimitService) CheckAndIncrement(ctx context.Context, key string, max int, window time.Duration) error {
	count, err := s.repo.IncrementWindow(ctx, key, time.Now(), window)
	if err != nil {
		s.logger.Error("rate limit check failed", slog.String("key", key), slog.Any("error", err))
		return nil
	}

	if count > max {
		s.logger.Warn("rate limit exceeded",
			slog.String("key", key),
			slog.Int("count", count),
			slog.Int("max", max))
		return models.ErrRateLimited
	}

	return nil
}

// IsRateLimited reports whether an error from CheckAndIncrement means
// the cap was hit.
func IsRateLimited(err error) bool {
	return errors.Is(err, models.ErrRateLimited)
}
