package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/auth"
	"github.com/John-CFO/chronocraft-api/internal/models"
	pkgauth "github.com/John-CFO/chronocraft-api/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoginVerifier(
	userRepo *MockUserRepository,
	credRepo *MockMFACredentialRepository,
) *LoginVerifier {
	return NewLoginVerifier(
		userRepo,
		credRepo,
		auth.NewSecretCipher(testMasterKey),
		auth.NewTokenManager("login-verifier-test-secret-32ch!", 15*time.Minute),
		NewRateLimitService(&MockRateLimitRepository{}, slog.Default()),
		slog.Default(),
		testConfig(),
	)
}

func userRepoWithMFAUser() *MockUserRepository {
	return &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return enrolledUser(true), nil
		},
	}
}

func TestLoginVerifier_VerifyLogin_Success(t *testing.T) {
	var successRecorded bool
	credRepo := &MockMFACredentialRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.MFACredential, error) {
			return enabledCredential(t), nil
		},
		RecordLoginSuccessFunc: func(ctx context.Context, userID string, at time.Time) error {
			successRecorded = true
			return nil
		},
	}

	v := newTestLoginVerifier(userRepoWithMFAUser(), credRepo)

	result, err := v.VerifyLogin(context.Background(), "user123", validCode(t, testSecret))

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Token)
	assert.True(t, successRecorded)

	// The issued token carries the elevated trust claim
	claims, err := auth.NewTokenManager("login-verifier-test-secret-32ch!", 15*time.Minute).ValidateToken(result.Token)
	require.NoError(t, err)
	assert.True(t, claims.MFAVerified)
	assert.Equal(t, "user123", claims.UserID)
}

func TestLoginVerifier_VerifyLogin_WrongCodeIsSoftFailure(t *testing.T) {
	var failureRecorded bool
	credRepo := &MockMFACredentialRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.MFACredential, error) {
			return enabledCredential(t), nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, userID string, at time.Time) error {
			failureRecorded = true
			return nil
		},
	}

	v := newTestLoginVerifier(userRepoWithMFAUser(), credRepo)

	result, err := v.VerifyLogin(context.Background(), "user123", invalidCode(t, testSecret))

	require.NoError(t, err, "a wrong code is not an error")
	assert.False(t, result.Valid)
	assert.Empty(t, result.Token)
	assert.True(t, failureRecorded)
}

func TestLoginVerifier_VerifyLogin_NotEnabled(t *testing.T) {
	v := newTestLoginVerifier(userRepoWithMFAUser(), &MockMFACredentialRepository{})

	_, err := v.VerifyLogin(context.Background(), "user123", "123456")
	assert.ErrorIs(t, err, models.ErrMFANotEnabled)
}

func TestLoginVerifier_VerifyLogin_DisabledCredential(t *testing.T) {
	credRepo := &MockMFACredentialRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.MFACredential, error) {
			cred := enabledCredential(t)
			cred.Enabled = false
			return cred, nil
		},
	}

	v := newTestLoginVerifier(userRepoWithMFAUser(), credRepo)

	_, err := v.VerifyLogin(context.Background(), "user123", "123456")
	assert.ErrorIs(t, err, models.ErrMFANotEnabled)
}

func TestLoginVerifier_VerifyLogin_Lockout(t *testing.T) {
	lastFailed := time.Now().Add(-1 * time.Minute)
	credRepo := &MockMFACredentialRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.MFACredential, error) {
			cred := enabledCredential(t)
			cred.FailedLogins = 5
			cred.LastFailedLoginAt = &lastFailed
			return cred, nil
		},
	}

	v := newTestLoginVerifier(userRepoWithMFAUser(), credRepo)

	// Even a correct code is rejected while locked out
	_, err := v.VerifyLogin(context.Background(), "user123", validCode(t, testSecret))
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)
}

func TestLoginVerifier_VerifyLogin_LockoutWindowLapsed(t *testing.T) {
	lastFailed := time.Now().Add(-11 * time.Minute)
	var failuresReset bool
	credRepo := &MockMFACredentialRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.MFACredential, error) {
			cred := enabledCredential(t)
			cred.FailedLogins = 5
			cred.LastFailedLoginAt = &lastFailed
			return cred, nil
		},
		ResetLoginFailuresFunc: func(ctx context.Context, userID string) error {
			failuresReset = true
			return nil
		},
	}

	v := newTestLoginVerifier(userRepoWithMFAUser(), credRepo)

	result, err := v.VerifyLogin(context.Background(), "user123", invalidCode(t, testSecret))

	require.NoError(t, err)
	assert.False(t, result.Valid, "still a wrong code, just no lockout")
	assert.True(t, failuresReset, "stale counter should restart before counting")
}

func TestLoginVerifier_VerifyRecoveryCode_Success(t *testing.T) {
	plain, hashes, err := pkgauth.GenerateRecoveryCodes()
	require.NoError(t, err)

	cred := enabledCredential(t)
	for _, hash := range hashes {
		cred.RecoveryCodes = append(cred.RecoveryCodes, models.RecoveryCodeEntry{
			CodeHash:  hash,
			CreatedAt: time.Now(),
		})
	}

	var savedCodes []models.RecoveryCodeEntry
	credRepo := &MockMFACredentialRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.MFACredential, error) {
			return cred, nil
		},
		UpdateRecoveryCodesFunc: func(ctx context.Context, userID string, codes []models.RecoveryCodeEntry) error {
			savedCodes = codes
			return nil
		},
	}

	v := newTestLoginVerifier(userRepoWithMFAUser(), credRepo)

	result, err := v.VerifyRecoveryCode(context.Background(), "user123", plain[3])

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Token)

	// The matched code is burned, the others stay usable
	require.Len(t, savedCodes, 10)
	assert.NotNil(t, savedCodes[3].UsedAt)
	assert.Nil(t, savedCodes[4].UsedAt)
}

func TestLoginVerifier_VerifyRecoveryCode_UsedCodeRejected(t *testing.T) {
	plain, hashes, err := pkgauth.GenerateRecoveryCodes()
	require.NoError(t, err)

	used := time.Now().Add(-1 * time.Hour)
	cred := enabledCredential(t)
	for i, hash := range hashes {
		entry := models.RecoveryCodeEntry{CodeHash: hash, CreatedAt: time.Now()}
		if i == 0 {
			entry.UsedAt = &used
		}
		cred.RecoveryCodes = append(cred.RecoveryCodes, entry)
	}

	credRepo := &MockMFACredentialRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.MFACredential, error) {
			return cred, nil
		},
	}

	v := newTestLoginVerifier(userRepoWithMFAUser(), credRepo)

	result, err := v.VerifyRecoveryCode(context.Background(), "user123", plain[0])

	require.NoError(t, err)
	assert.False(t, result.Valid, "a burned code must not verify again")
}

func TestLoginVerifier_VerifyRecoveryCode_RateLimited(t *testing.T) {
	credRepo := &MockMFACredentialRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.MFACredential, error) {
			return enabledCredential(t), nil
		},
	}

	v := NewLoginVerifier(
		userRepoWithMFAUser(),
		credRepo,
		auth.NewSecretCipher(testMasterKey),
		auth.NewTokenManager("login-verifier-test-secret-32ch!", 15*time.Minute),
		NewRateLimitService(&MockRateLimitRepository{
			IncrementWindowFunc: func(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
				return 6, nil
			},
		}, slog.Default()),
		slog.Default(),
		testConfig(),
	)

	_, err := v.VerifyRecoveryCode(context.Background(), "user123", "AAAAA-AAAAA")
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)
}

func TestLoginVerifier_VerifyLogin_StoreRateLimited(t *testing.T) {
	credRepo := &MockMFACredentialRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.MFACredential, error) {
			return enabledCredential(t), nil
		},
	}

	var limiterKey string
	v := NewLoginVerifier(
		userRepoWithMFAUser(),
		credRepo,
		auth.NewSecretCipher(testMasterKey),
		auth.NewTokenManager("login-verifier-test-secret-32ch!", 15*time.Minute),
		NewRateLimitService(&MockRateLimitRepository{
			IncrementWindowFunc: func(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
				limiterKey = key
				return 6, nil
			},
		}, slog.Default()),
		slog.Default(),
		testConfig(),
	)

	_, err := v.VerifyLogin(context.Background(), "user123", validCode(t, testSecret))

	assert.ErrorIs(t, err, models.ErrTooManyAttempts)
	assert.Equal(t, "mfa_login:user123", limiterKey)
}
