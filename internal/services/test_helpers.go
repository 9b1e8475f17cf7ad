package services

import (
	"context"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/models"
	"github.com/jackc/pgx/v5"
)

// MockUserRepository implements repositories.UserRepository for testing
type MockUserRepository struct {
	CreateFunc                 func(ctx context.Context, user *models.User) error
	GetByIDFunc                func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc             func(ctx context.Context, email string) (*models.User, error)
	SetEnrollmentStartedAtFunc func(ctx context.Context, userID string, at time.Time) error
	SetMFAEnabledFunc          func(ctx context.Context, tx pgx.Tx, userID string, enabled bool, enrolledAt *time.Time) error
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return models.ErrInternalServer
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) SetEnrollmentStartedAt(ctx context.Context, userID string, at time.Time) error {
	if m.SetEnrollmentStartedAtFunc != nil {
		return m.SetEnrollmentStartedAtFunc(ctx, userID, at)
	}
	return nil
}

func (m *MockUserRepository) SetMFAEnabled(ctx context.Context, tx pgx.Tx, userID string, enabled bool, enrolledAt *time.Time) error {
	if m.SetMFAEnabledFunc != nil {
		return m.SetMFAEnabledFunc(ctx, tx, userID, enabled, enrolledAt)
	}
	return nil
}

// MockPendingEnrollmentRepository implements repositories.PendingEnrollmentRepository for testing
type MockPendingEnrollmentRepository struct {
	CreateFunc            func(ctx context.Context, enrollment *models.PendingEnrollment) error
	GetActiveByUserIDFunc func(ctx context.Context, userID string, now time.Time) (*models.PendingEnrollment, error)
	GetByIDForUpdateFunc  func(ctx context.Context, tx pgx.Tx, id string) (*models.PendingEnrollment, error)
	RecordFailureFunc     func(ctx context.Context, tx pgx.Tx, id string, at time.Time, window time.Duration) error
	DeleteFunc            func(ctx context.Context, tx pgx.Tx, id string) error
	DeleteByUserIDFunc    func(ctx context.Context, tx pgx.Tx, userID string) error
	DeleteExpiredFunc     func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockPendingEnrollmentRepository) Create(ctx context.Context, enrollment *models.PendingEnrollment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, enrollment)
	}
	return models.ErrInternalServer
}

func (m *MockPendingEnrollmentRepository) GetActiveByUserID(ctx context.Context, userID string, now time.Time) (*models.PendingEnrollment, error) {
	if m.GetActiveByUserIDFunc != nil {
		return m.GetActiveByUserIDFunc(ctx, userID, now)
	}
	return nil, models.ErrNotFound
}

func (m *MockPendingEnrollmentRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.PendingEnrollment, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, tx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockPendingEnrollmentRepository) RecordFailure(ctx context.Context, tx pgx.Tx, id string, at time.Time, window time.Duration) error {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, tx, id, at, window)
	}
	return nil
}

func (m *MockPendingEnrollmentRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tx, id)
	}
	return nil
}

func (m *MockPendingEnrollmentRepository) DeleteByUserID(ctx context.Context, tx pgx.Tx, userID string) error {
	if m.DeleteByUserIDFunc != nil {
		return m.DeleteByUserIDFunc(ctx, tx, userID)
	}
	return nil
}

func (m *MockPendingEnrollmentRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now)
	}
	return 0, nil
}

// MockMFACredentialRepository implements repositories.MFACredentialRepository for testing
type MockMFACredentialRepository struct {
	GetByUserIDFunc         func(ctx context.Context, userID string) (*models.MFACredential, error)
	ExistsFunc              func(ctx context.Context, tx pgx.Tx, userID string) (bool, error)
	CreateFunc              func(ctx context.Context, tx pgx.Tx, cred *models.MFACredential) error
	RecordLoginSuccessFunc  func(ctx context.Context, userID string, at time.Time) error
	RecordLoginFailureFunc  func(ctx context.Context, userID string, at time.Time) error
	ResetLoginFailuresFunc  func(ctx context.Context, userID string) error
	UpdateRecoveryCodesFunc func(ctx context.Context, userID string, codes []models.RecoveryCodeEntry) error
	DeleteFunc              func(ctx context.Context, tx pgx.Tx, userID string) error
}

func (m *MockMFACredentialRepository) GetByUserID(ctx context.Context, userID string) (*models.MFACredential, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockMFACredentialRepository) Exists(ctx context.Context, tx pgx.Tx, userID string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, tx, userID)
	}
	return false, nil
}

func (m *MockMFACredentialRepository) Create(ctx context.Context, tx pgx.Tx, cred *models.MFACredential) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, cred)
	}
	return models.ErrInternalServer
}

func (m *MockMFACredentialRepository) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	if m.RecordLoginSuccessFunc != nil {
		return m.RecordLoginSuccessFunc(ctx, userID, at)
	}
	return nil
}

func (m *MockMFACredentialRepository) RecordLoginFailure(ctx context.Context, userID string, at time.Time) error {
	if m.RecordLoginFailureFunc != nil {
		return m.RecordLoginFailureFunc(ctx, userID, at)
	}
	return nil
}

func (m *MockMFACredentialRepository) ResetLoginFailures(ctx context.Context, userID string) error {
	if m.ResetLoginFailuresFunc != nil {
		return m.ResetLoginFailuresFunc(ctx, userID)
	}
	return nil
}

func (m *MockMFACredentialRepository) UpdateRecoveryCodes(ctx context.Context, userID string, codes []models.RecoveryCodeEntry) error {
	if m.UpdateRecoveryCodesFunc != nil {
		return m.UpdateRecoveryCodesFunc(ctx, userID, codes)
	}
	return nil
}

func (m *MockMFACredentialRepository) Delete(ctx context.Context, tx pgx.Tx, userID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tx, userID)
	}
	return nil
}

// MockRateLimitRepository implements repositories.RateLimitRepository for testing
type MockRateLimitRepository struct {
	IncrementWindowFunc func(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
	DeleteStaleFunc     func(ctx context.Context, olderThan time.Time) (int64, error)
}

func (m *MockRateLimitRepository) IncrementWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	if m.IncrementWindowFunc != nil {
		return m.IncrementWindowFunc(ctx, key, now, window)
	}
	return 1, nil
}

func (m *MockRateLimitRepository) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	if m.DeleteStaleFunc != nil {
		return m.DeleteStaleFunc(ctx, olderThan)
	}
	return 0, nil
}

// MockTxManager runs the transaction function with a nil tx, which the
// repository mocks ignore.
type MockTxManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(pgx.Tx) error) error
}

func (m *MockTxManager) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(nil)
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendMFAEnabledNotificationFunc  func(ctx context.Context, email, name string) error
	SendMFADisabledNotificationFunc func(ctx context.Context, email, name string) error
}

func (m *MockEmailService) SendMFAEnabledNotification(ctx context.Context, email, name string) error {
	if m.SendMFAEnabledNotificationFunc != nil {
		return m.SendMFAEnabledNotificationFunc(ctx, email, name)
	}
	return nil
}

func (m *MockEmailService) SendMFADisabledNotification(ctx context.Context, email, name string) error {
	if m.SendMFADisabledNotificationFunc != nil {
		return m.SendMFADisabledNotificationFunc(ctx, email, name)
	}
	return nil
}
