package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/auth"
	"github.com/John-CFO/chronocraft-api/internal/models"
	"github.com/John-CFO/chronocraft-api/internal/repositories"
	pkgauth "github.com/John-CFO/chronocraft-api/pkg/auth"
)

// LoginVerifier checks second-factor codes at login time and issues
// elevated access tokens on success.
type LoginVerifier struct {
	userRepo       repositories.UserRepository
	credentialRepo repositories.MFACredentialRepository
	cipher         *auth.SecretCipher
	tokens         *auth.TokenManager
	rateLimits     *RateLimitService
	logger         *slog.Logger
	config         MFAConfig
}

// NewLoginVerifier creates a new login verifier
func NewLoginVerifier(
	userRepo repositories.UserRepository,
	credentialRepo repositories.MFACredentialRepository,
	cipher *auth.SecretCipher,
	tokens *auth.TokenManager,
	rateLimits *RateLimitService,
	logger *slog.Logger,
	config MFAConfig,
) *LoginVerifier {
	return &LoginVerifier{
		userRepo:       userRepo,
		credentialRepo: credentialRepo,
		cipher:         cipher,
		tokens:         tokens,
		rateLimits:     rateLimits,
		logger:         logger,
		config:         config,
	}
}

// VerifyLogin checks a TOTP code during login. A wrong code is a soft
// outcome: the result carries Valid=false and the caller decides the
// response. Hard failures (no enabled factor, lockout) are errors.
//
// Failure bookkeeping is written outside any transaction. Two racing
// attempts may each record the same counter value; the lockout then
// trips one attempt later, which is acceptable for a throttle.
func (v *LoginVerifier) VerifyLogin(ctx context.Context, userID, code string) (*models.LoginVerification, error) {
	user, err := v.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, models.ErrNotFound
	}

	cred, err := v.getEnabledCredential(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	if v.isLockedOut(cred, now) {
		v.logger.Warn("MFA login locked out",
			slog.String("user_id", userID),
			slog.Int("failed_logins", cred.FailedLogins))
		return nil, models.ErrTooManyAttempts
	}

	// Attempt budget also holds across restarts and instances
	if err := v.rateLimits.CheckAndIncrement(ctx, "mfa_login:"+userID, v.config.MaxAttempts, v.config.AttemptWindow); err != nil {
		return nil, models.ErrTooManyAttempts
	}

	secret, err := v.cipher.Decrypt(cred.EncryptedSecret)
	if err != nil {
		v.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	ok, err := auth.VerifyTOTP(secret, code, auth.DefaultWindow, now, auth.DefaultPeriod)
	if err != nil || !ok {
		v.recordFailure(ctx, cred, now)
		return &models.LoginVerification{
			Valid:   false,
			Message: "invalid verification code",
		}, nil
	}

	return v.completeVerification(ctx, user, now)
}

// VerifyRecoveryCode checks a one-time recovery code during login. A
// matching code is burned immediately so it cannot be replayed.
func (v *LoginVerifier) VerifyRecoveryCode(ctx context.Context, userID, code string) (*models.LoginVerification, error) {
	user, err := v.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, models.ErrNotFound
	}

	cred, err := v.getEnabledCredential(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	if v.isLockedOut(cred, now) {
		return nil, models.ErrTooManyAttempts
	}

	// Recovery attempts are additionally capped across restarts
	if err := v.rateLimits.CheckAndIncrement(ctx, "mfa_recovery:"+userID, v.config.MaxAttempts, v.config.AttemptWindow); err != nil {
		return nil, models.ErrTooManyAttempts
	}

	for i, entry := range cred.RecoveryCodes {
		if entry.UsedAt != nil {
			continue
		}

		if pkgauth.CompareRecoveryCode(entry.CodeHash, code) == nil {
			used := now
			cred.RecoveryCodes[i].UsedAt = &used

			if err := v.credentialRepo.UpdateRecoveryCodes(ctx, userID, cred.RecoveryCodes); err != nil {
				v.logger.Error("failed to burn recovery code", slog.Any("error", err))
				return nil, models.ErrInternalServer
			}

			v.logger.Info("recovery code used",
				slog.String("user_id", userID),
				slog.Int("code_index", i))

			return v.completeVerification(ctx, user, now)
		}
	}

	v.recordFailure(ctx, cred, now)
	return &models.LoginVerification{
		Valid:   false,
		Message: "invalid recovery code",
	}, nil
}

func (v *LoginVerifier) getEnabledCredential(ctx context.Context, userID string) (*models.MFACredential, error) {
	cred, err := v.credentialRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrMFANotEnabled
		}
		v.logger.Error("failed to get MFA credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !cred.Enabled {
		return nil, models.ErrMFANotEnabled
	}

	return cred, nil
}

func (v *LoginVerifier) isLockedOut(cred *models.MFACredential, now time.Time) bool {
	if cred.FailedLogins < v.config.MaxAttempts {
		return false
	}
	// Failures outside the sliding window no longer count
	return cred.LastFailedLoginAt != nil && now.Sub(*cred.LastFailedLoginAt) < v.config.AttemptWindow
}

func (v *LoginVerifier) recordFailure(ctx context.Context, cred *models.MFACredential, now time.Time) {
	if cred.LastFailedLoginAt != nil && now.Sub(*cred.LastFailedLoginAt) >= v.config.AttemptWindow {
		if err := v.credentialRepo.ResetLoginFailures(ctx, cred.UserID); err != nil {
			v.logger.Error("failed to reset login failures", slog.Any("error", err))
		}
	}

	if err := v.credentialRepo.RecordLoginFailure(ctx, cred.UserID, now); err != nil {
		v.logger.Error("failed to record login failure", slog.Any("error", err))
	}

	v.logger.Warn("invalid MFA login code",
		slog.String("user_id", cred.UserID),
		slog.Int("failed_logins_before", cred.FailedLogins))
}

func (v *LoginVerifier) completeVerification(ctx context.Context, user *models.User, now time.Time) (*models.LoginVerification, error) {
	if err := v.credentialRepo.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		v.logger.Error("failed to record login success", slog.Any("error", err))
	}

	token, err := v.tokens.GenerateAccessToken(user.ID, user.Email, true)
	if err != nil {
		v.logger.Error("failed to issue elevated token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	v.logger.Info("MFA login verified", slog.String("user_id", user.ID))

	return &models.LoginVerification{
		Valid: true,
		Token: token,
	}, nil
}
