package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitService_UnderCap(t *testing.T) {
	repo := &MockRateLimitRepository{
		IncrementWindowFunc: func(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
			return 3, nil
		},
	}

	svc := NewRateLimitService(repo, slog.Default())

	err := svc.CheckAndIncrement(context.Background(), "mfa_recovery:user123", 5, 10*time.Minute)
	assert.NoError(t, err)
}

func TestRateLimitService_CapExceeded(t *testing.T) {
	repo := &MockRateLimitRepository{
		IncrementWindowFunc: func(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
			return 6, nil
		},
	}

	svc := NewRateLimitService(repo, slog.Default())

	err := svc.CheckAndIncrement(context.Background(), "mfa_recovery:user123", 5, 10*time.Minute)
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.True(t, IsRateLimited(err))
}

func TestRateLimitService_ExactlyAtCapAllowed(t *testing.T) {
	repo := &MockRateLimitRepository{
		IncrementWindowFunc: func(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
			return 5, nil
		},
	}

	svc := NewRateLimitService(repo, slog.Default())

	err := svc.CheckAndIncrement(context.Background(), "mfa_recovery:user123", 5, 10*time.Minute)
	assert.NoError(t, err)
}

func TestRateLimitService_StorageErrorFailsOpen(t *testing.T) {
	repo := &MockRateLimitRepository{
		IncrementWindowFunc: func(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
			return 0, errors.New("connection refused")
		},
	}

	svc := NewRateLimitService(repo, slog.Default())

	err := svc.CheckAndIncrement(context.Background(), "mfa_recovery:user123", 5, 10*time.Minute)
	assert.NoError(t, err, "a storage error should not block the request")
}
