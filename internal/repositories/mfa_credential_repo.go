package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/database"
	"github.com/John-CFO/chronocraft-api/internal/models"
	"github.com/jackc/pgx/v5"
)

// MFACredentialRepository defines persistence for activated MFA credentials
type MFACredentialRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.MFACredential, error)
	Exists(ctx context.Context, tx pgx.Tx, userID string) (bool, error)
	Create(ctx context.Context, tx pgx.Tx, cred *models.MFACredential) error
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error
	RecordLoginFailure(ctx context.Context, userID string, at time.Time) error
	ResetLoginFailures(ctx context.Context, userID string) error
	UpdateRecoveryCodes(ctx context.Context, userID string, codes []models.RecoveryCodeEntry) error
	Delete(ctx context.Context, tx pgx.Tx, userID string) error
}

type mfaCredentialRepo struct {
	db *database.DB
}

// NewMFACredentialRepository creates a new MFA credential repository
func NewMFACredentialRepository(db *database.DB) MFACredentialRepository {
	return &mfaCredentialRepo{db: db}
}

func (r *mfaCredentialRepo) q(tx pgx.Tx) database.Querier {
	if tx != nil {
		return tx
	}
	return r.db.Pool
}

// GetByUserID returns the credential for a user, or ErrNotFound
func (r *mfaCredentialRepo) GetByUserID(ctx context.Context, userID string) (*models.MFACredential, error) {
	query := `
		SELECT user_id, encrypted_secret, enabled, recovery_codes,
		       failed_logins, last_failed_login_at, last_verified_at, created_at
		FROM mfa_credentials
		WHERE user_id = $1
	`

	cred := &models.MFACredential{}
	var recoveryJSON []byte
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&cred.UserID,
		&cred.EncryptedSecret,
		&cred.Enabled,
		&recoveryJSON,
		&cred.FailedLogins,
		&cred.LastFailedLoginAt,
		&cred.LastVerifiedAt,
		&cred.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get MFA credential: %w", err)
	}

	if len(recoveryJSON) > 0 {
		if err := json.Unmarshal(recoveryJSON, &cred.RecoveryCodes); err != nil {
			return nil, fmt.Errorf("failed to decode recovery codes: %w", err)
		}
	}

	return cred, nil
}

// Exists reports whether a credential row is present for the user
func (r *mfaCredentialRepo) Exists(ctx context.Context, tx pgx.Tx, userID string) (bool, error) {
	var exists bool
	err := r.q(tx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM mfa_credentials WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check MFA credential existence: %w", err)
	}

	return exists, nil
}

// Create inserts a new credential row
func (r *mfaCredentialRepo) Create(ctx context.Context, tx pgx.Tx, cred *models.MFACredential) error {
	recoveryJSON, err := json.Marshal(cred.RecoveryCodes)
	if err != nil {
		return fmt.Errorf("failed to encode recovery codes: %w", err)
	}

	query := `
		INSERT INTO mfa_credentials (user_id, encrypted_secret, enabled, recovery_codes)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err = r.q(tx).QueryRow(ctx, query,
		cred.UserID,
		cred.EncryptedSecret,
		cred.Enabled,
		recoveryJSON,
	).Scan(&cred.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create MFA credential: %w", database.MapPostgresError(err))
	}

	return nil
}

// RecordLoginSuccess stamps the last verification time and clears failures
func (r *mfaCredentialRepo) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE mfa_credentials
		SET last_verified_at = $1, failed_logins = 0, last_failed_login_at = NULL
		WHERE user_id = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, at, userID)
	if err != nil {
		return fmt.Errorf("failed to record MFA login success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// RecordLoginFailure bumps the failure counter and stamps the failure
// time. Sliding-window resets happen in the service via ResetLoginFailures.
func (r *mfaCredentialRepo) RecordLoginFailure(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE mfa_credentials
		SET failed_logins = failed_logins + 1, last_failed_login_at = $1
		WHERE user_id = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, at, userID)
	if err != nil {
		return fmt.Errorf("failed to record MFA login failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ResetLoginFailures zeroes the failure counter
func (r *mfaCredentialRepo) ResetLoginFailures(ctx context.Context, userID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE mfa_credentials SET failed_logins = 0, last_failed_login_at = NULL WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset MFA login failures: %w", err)
	}

	return nil
}

// UpdateRecoveryCodes replaces the stored recovery code entries
func (r *mfaCredentialRepo) UpdateRecoveryCodes(ctx context.Context, userID string, codes []models.RecoveryCodeEntry) error {
	recoveryJSON, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("failed to encode recovery codes: %w", err)
	}

	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE mfa_credentials SET recovery_codes = $1 WHERE user_id = $2`,
		recoveryJSON, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update recovery codes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete removes the credential row for a user
func (r *mfaCredentialRepo) Delete(ctx context.Context, tx pgx.Tx, userID string) error {
	tag, err := r.q(tx).Exec(ctx, `DELETE FROM mfa_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete MFA credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
