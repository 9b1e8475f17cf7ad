package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/database"
	"github.com/John-CFO/chronocraft-api/internal/models"
	"github.com/jackc/pgx/v5"
)

// PendingEnrollmentRepository defines persistence for in-progress MFA
// setup attempts. Methods taking a pgx.Tx participate in the caller's
// transaction; a nil tx falls back to the pool.
type PendingEnrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.PendingEnrollment) error
	GetActiveByUserID(ctx context.Context, userID string, now time.Time) (*models.PendingEnrollment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.PendingEnrollment, error)
	RecordFailure(ctx context.Context, tx pgx.Tx, id string, at time.Time, window time.Duration) error
	Delete(ctx context.Context, tx pgx.Tx, id string) error
	DeleteByUserID(ctx context.Context, tx pgx.Tx, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type pendingEnrollmentRepo struct {
	db *database.DB
}

// NewPendingEnrollmentRepository creates a new pending enrollment repository
func NewPendingEnrollmentRepository(db *database.DB) PendingEnrollmentRepository {
	return &pendingEnrollmentRepo{db: db}
}

func (r *pendingEnrollmentRepo) q(tx pgx.Tx) database.Querier {
	if tx != nil {
		return tx
	}
	return r.db.Pool
}

// Create inserts a new pending enrollment
func (r *pendingEnrollmentRepo) Create(ctx context.Context, enrollment *models.PendingEnrollment) error {
	query := `
		INSERT INTO mfa_pending_enrollments (user_id, encrypted_secret, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		enrollment.UserID,
		enrollment.EncryptedSecret,
		enrollment.ExpiresAt,
	).Scan(&enrollment.ID, &enrollment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pending enrollment: %w", database.MapPostgresError(err))
	}

	return nil
}

// GetActiveByUserID returns the most recent unexpired pending enrollment
// for a user. Expired records are filtered out here; they are treated as
// absent everywhere.
func (r *pendingEnrollmentRepo) GetActiveByUserID(ctx context.Context, userID string, now time.Time) (*models.PendingEnrollment, error) {
	query := `
		SELECT id, user_id, encrypted_secret, failed_attempts, last_failed_at, created_at, expires_at
		FROM mfa_pending_enrollments
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	enrollment := &models.PendingEnrollment{}
	err := r.db.Pool.QueryRow(ctx, query, userID, now).Scan(
		&enrollment.ID,
		&enrollment.UserID,
		&enrollment.EncryptedSecret,
		&enrollment.FailedAttempts,
		&enrollment.LastFailedAt,
		&enrollment.CreatedAt,
		&enrollment.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending enrollment: %w", err)
	}

	return enrollment, nil
}

// GetByIDForUpdate reads a pending enrollment with a row lock so that
// concurrent confirm attempts for the same enrollment serialize.
func (r *pendingEnrollmentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.PendingEnrollment, error) {
	query := `
		SELECT id, user_id, encrypted_secret, failed_attempts, last_failed_at, created_at, expires_at
		FROM mfa_pending_enrollments
		WHERE id = $1
		FOR UPDATE
	`

	enrollment := &models.PendingEnrollment{}
	err := r.q(tx).QueryRow(ctx, query, id).Scan(
		&enrollment.ID,
		&enrollment.UserID,
		&enrollment.EncryptedSecret,
		&enrollment.FailedAttempts,
		&enrollment.LastFailedAt,
		&enrollment.CreatedAt,
		&enrollment.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock pending enrollment: %w", err)
	}

	return enrollment, nil
}

// RecordFailure atomically bumps the failure counter, restarting it when
// the previous failure fell outside the sliding window. Concurrent wrong
// codes each count; no increment is lost to a read-modify-write race.
func (r *pendingEnrollmentRepo) RecordFailure(ctx context.Context, tx pgx.Tx, id string, at time.Time, window time.Duration) error {
	windowFloor := at.Add(-window)

	query := `
		UPDATE mfa_pending_enrollments
		SET failed_attempts = CASE
				WHEN last_failed_at IS NULL OR last_failed_at <= $2 THEN 1
				ELSE failed_attempts + 1
			END,
			last_failed_at = $1
		WHERE id = $3
	`

	tag, err := r.q(tx).Exec(ctx, query, at, windowFloor, id)
	if err != nil {
		return fmt.Errorf("failed to record enrollment failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete removes a pending enrollment
func (r *pendingEnrollmentRepo) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := r.q(tx).Exec(ctx, `DELETE FROM mfa_pending_enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// DeleteByUserID removes all pending enrollments for a user. Zero rows
// is not an error here since disable must succeed with no setup pending.
func (r *pendingEnrollmentRepo) DeleteByUserID(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := r.q(tx).Exec(ctx, `DELETE FROM mfa_pending_enrollments WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete pending enrollments for user: %w", err)
	}

	return nil
}

// DeleteExpired removes enrollments past their expiry (background sweep)
func (r *pendingEnrollmentRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM mfa_pending_enrollments WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired enrollments: %w", err)
	}

	return tag.RowsAffected(), nil
}
