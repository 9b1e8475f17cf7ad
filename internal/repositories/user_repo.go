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

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetEnrollmentStartedAt(ctx context.Context, userID string, at time.Time) error
	SetMFAEnabled(ctx context.Context, tx pgx.Tx, userID string, enabled bool, enrolledAt *time.Time) error
}

type userRepo struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) q(tx pgx.Tx) database.Querier {
	if tx != nil {
		return tx
	}
	return r.db.Pool
}

// Create inserts a new user
func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, name)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query, user.Email, user.Name).Scan(
		&user.ID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", database.MapPostgresError(err))
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, name, mfa_enabled, mfa_enrolled_at, last_enrollment_start_at, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.MFAEnabled,
		&user.MFAEnrolledAt,
		&user.LastEnrollmentStartAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// GetByEmail retrieves a user by email
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, name, mfa_enabled, mfa_enrolled_at, last_enrollment_start_at, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.MFAEnabled,
		&user.MFAEnrolledAt,
		&user.LastEnrollmentStartAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// SetEnrollmentStartedAt stamps the start of an enrollment attempt,
// used for the cooldown between fresh setup requests.
func (r *userRepo) SetEnrollmentStartedAt(ctx context.Context, userID string, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET last_enrollment_start_at = $1, updated_at = NOW() WHERE id = $2`,
		at, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set enrollment start: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetMFAEnabled flips the profile flag, inside the caller's transaction
// when one is given.
func (r *userRepo) SetMFAEnabled(ctx context.Context, tx pgx.Tx, userID string, enabled bool, enrolledAt *time.Time) error {
	query := `
		UPDATE users
		SET mfa_enabled = $1, mfa_enrolled_at = $2, updated_at = NOW()
		WHERE id = $3
	`

	tag, err := r.q(tx).Exec(ctx, query, enabled, enrolledAt, userID)
	if err != nil {
		return fmt.Errorf("failed to set MFA enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
