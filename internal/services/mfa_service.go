package services

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/auth"
	"github.com/John-CFO/chronocraft-api/internal/database"
	"github.com/John-CFO/chronocraft-api/internal/models"
	"github.com/John-CFO/chronocraft-api/internal/repositories"
	pkgauth "github.com/John-CFO/chronocraft-api/pkg/auth"
	"github.com/John-CFO/chronocraft-api/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/skip2/go-qrcode"
)

// MFAService handles TOTP enrollment, activation, and removal
type MFAService struct {
	userRepo       repositories.UserRepository
	enrollmentRepo repositories.PendingEnrollmentRepository
	credentialRepo repositories.MFACredentialRepository
	tx             database.TxManager
	cipher         *auth.SecretCipher
	emails         EmailService
	logger         *slog.Logger
	config         MFAConfig
}

// MFAConfig holds MFA behavior configuration
type MFAConfig struct {
	Issuer             string
	MaxAttempts        int
	AttemptWindow      time.Duration
	EnrollmentTTL      time.Duration
	EnrollmentCooldown time.Duration
}

// NewMFAService creates a new MFA service
func NewMFAService(
	userRepo repositories.UserRepository,
	enrollmentRepo repositories.PendingEnrollmentRepository,
	credentialRepo repositories.MFACredentialRepository,
	tx database.TxManager,
	cipher *auth.SecretCipher,
	emails EmailService,
	logger *slog.Logger,
	config MFAConfig,
) *MFAService {
	return &MFAService{
		userRepo:       userRepo,
		enrollmentRepo: enrollmentRepo,
		credentialRepo: credentialRepo,
		tx:             tx,
		cipher:         cipher,
		emails:         emails,
		logger:         logger,
		config:         config,
	}
}

// StartEnrollment begins TOTP setup for a user and returns the secret,
// the otpauth URI, and a QR code. An unexpired pending enrollment is
// reissued as-is so a user who re-opens the setup screen keeps scanning
// the same secret. A fresh secret is only minted after the cooldown
// since the previous attempt.
func (s *MFAService) StartEnrollment(ctx context.Context, userID string) (*models.EnrollmentChallenge, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, models.ErrNotFound
	}

	if user.MFAEnabled {
		return nil, models.ErrMFAAlreadyEnabled
	}

	now := time.Now()

	// Reuse an unexpired pending enrollment
	pending, err := s.enrollmentRepo.GetActiveByUserID(ctx, userID, now)
	if err == nil {
		secret, err := s.cipher.Decrypt(pending.EncryptedSecret)
		if err != nil {
			s.logger.Error("failed to decrypt pending enrollment secret", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		return s.buildChallenge(pending.ID, secret, user.Email, pending.ExpiresAt)
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up pending enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Cooldown between fresh secrets
	if user.LastEnrollmentStartAt != nil && now.Sub(*user.LastEnrollmentStartAt) < s.config.EnrollmentCooldown {
		s.logger.Warn("enrollment start throttled", slog.String("user_id", userID))
		return nil, models.ErrRateLimited
	}

	secret, err := auth.GenerateSecret(auth.DefaultSecretSize)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	encrypted, err := s.cipher.Encrypt(secret)
	if err != nil {
		s.logger.Error("failed to encrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	pending = &models.PendingEnrollment{
		UserID:          userID,
		EncryptedSecret: encrypted,
		ExpiresAt:       now.Add(s.config.EnrollmentTTL),
	}

	if err := s.enrollmentRepo.Create(ctx, pending); err != nil {
		s.logger.Error("failed to create pending enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.userRepo.SetEnrollmentStartedAt(ctx, userID, now); err != nil {
		s.logger.Error("failed to stamp enrollment start", slog.Any("error", err))
	}

	s.logger.Info("MFA enrollment started",
		slog.String("user_id", userID),
		slog.String("enrollment_id", pending.ID))

	return s.buildChallenge(pending.ID, secret, user.Email, pending.ExpiresAt)
}

// ConfirmEnrollment checks the user's first TOTP code and, when it is
// valid, activates MFA in a single transaction: the credential is
// created, the pending record removed, and the profile flag flipped
// together. The pending row is locked for the duration so a concurrent
// confirm cannot activate twice. enrollmentID is optional; when given it
// must match the user's active enrollment.
func (s *MFAService) ConfirmEnrollment(ctx context.Context, userID, enrollmentID, code string) (*models.EnrollmentResult, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, models.ErrNotFound
	}

	if user.MFAEnabled {
		return nil, models.ErrMFAAlreadyEnabled
	}

	now := time.Now()

	active, err := s.enrollmentRepo.GetActiveByUserID(ctx, userID, now)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to look up pending enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Lookups are scoped by user, so an enrollment belonging to someone
	// else is indistinguishable from no enrollment at all
	if enrollmentID != "" && active.ID != enrollmentID {
		return nil, models.ErrNotFound
	}
	if active.IsExpired(now) {
		s.discardPending(ctx, active.ID)
		return nil, models.ErrEnrollmentExpired
	}

	attempts := active.FailedAttempts
	if active.LastFailedAt != nil && now.Sub(*active.LastFailedAt) >= s.config.AttemptWindow {
		// Previous failures fell out of the sliding window
		attempts = 0
	}
	if attempts >= s.config.MaxAttempts {
		// The enrollment is burned; the user starts over with a fresh
		// secret instead of waiting out the TTL
		s.discardPending(ctx, active.ID)
		return nil, models.ErrTooManyAttempts
	}

	secret, err := s.cipher.Decrypt(active.EncryptedSecret)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	ok, err := auth.VerifyTOTP(secret, code, auth.DefaultWindow, now, auth.DefaultPeriod)
	if err != nil || !ok {
		// The failure counter is written outside any transaction so it
		// cannot be rolled back
		if err := s.enrollmentRepo.RecordFailure(ctx, nil, active.ID, now, s.config.AttemptWindow); err != nil {
			s.logger.Error("failed to record enrollment failure", slog.Any("error", err))
		}
		s.logger.Warn("invalid TOTP code during enrollment confirm",
			slog.String("user_id", userID),
			slog.Int("failed_attempts_before", attempts))
		return nil, models.ErrMFAInvalidCode
	}

	// Only hashed once the code has been accepted, bcrypt at cost 14 is
	// too slow to run on every failed attempt
	plainCodes, hashes, err := pkgauth.GenerateRecoveryCodes()
	if err != nil {
		s.logger.Error("failed to generate recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entries := make([]models.RecoveryCodeEntry, len(hashes))
	for i, hash := range hashes {
		entries[i] = models.RecoveryCodeEntry{
			CodeHash:  hash,
			UsedAt:    nil,
			CreatedAt: now,
		}
	}

	txErr := s.tx.WithTransaction(ctx, func(tx pgx.Tx) error {
		// Re-read under lock; a concurrent confirm may have raced us here
		pending, err := s.enrollmentRepo.GetByIDForUpdate(ctx, tx, active.ID)
		if err != nil {
			return err
		}
		if pending.IsExpired(now) {
			return models.ErrEnrollmentExpired
		}

		exists, err := s.credentialRepo.Exists(ctx, tx, userID)
		if err != nil {
			s.logger.Error("failed to check credential existence", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if exists {
			return models.ErrMFAAlreadyEnabled
		}

		cred := &models.MFACredential{
			UserID:          userID,
			EncryptedSecret: pending.EncryptedSecret,
			Enabled:         true,
			RecoveryCodes:   entries,
		}

		if err := s.credentialRepo.Create(ctx, tx, cred); err != nil {
			s.logger.Error("failed to create MFA credential", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if err := s.enrollmentRepo.Delete(ctx, tx, pending.ID); err != nil {
			s.logger.Error("failed to delete pending enrollment", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if err := s.userRepo.SetMFAEnabled(ctx, tx, userID, true, &now); err != nil {
			s.logger.Error("failed to enable MFA flag", slog.Any("error", err))
			return models.ErrInternalServer
		}

		return nil
	})

	if txErr != nil {
		return nil, txErr
	}

	if err := s.emails.SendMFAEnabledNotification(ctx, user.Email, user.Name); err != nil {
		s.logger.Warn("failed to send MFA enabled notification",
			slog.String("email", logger.SanitizedEmail(user.Email)),
			slog.Any("error", err))
	}

	s.logger.Info("MFA enrollment confirmed", slog.String("user_id", userID))

	return &models.EnrollmentResult{
		RecoveryCodes: plainCodes,
		EnabledAt:     now,
	}, nil
}

// DisableMFA removes the user's TOTP factor. An authenticated session
// is sufficient to self-disable; the call is idempotent when no factor
// exists. Credential, pending enrollments, and the profile flag are
// removed in one transaction.
func (s *MFAService) DisableMFA(ctx context.Context, userID string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return models.ErrNotFound
	}

	hadFactor := user.MFAEnabled

	txErr := s.tx.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.credentialRepo.Delete(ctx, tx, userID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		if err := s.enrollmentRepo.DeleteByUserID(ctx, tx, userID); err != nil {
			return err
		}
		return s.userRepo.SetMFAEnabled(ctx, tx, userID, false, nil)
	})
	if txErr != nil {
		s.logger.Error("failed to disable MFA", slog.Any("error", txErr))
		return models.ErrInternalServer
	}

	if hadFactor {
		if err := s.emails.SendMFADisabledNotification(ctx, user.Email, user.Name); err != nil {
			s.logger.Warn("failed to send MFA disabled notification",
				slog.String("email", logger.SanitizedEmail(user.Email)),
				slog.Any("error", err))
		}
		s.logger.Info("MFA disabled", slog.String("user_id", userID))
	}

	return nil
}

// GetStatus returns whether MFA is enabled for a user
func (s *MFAService) GetStatus(ctx context.Context, userID string) (*models.MFAStatus, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, models.ErrNotFound
	}

	return &models.MFAStatus{
		Enabled:    user.MFAEnabled,
		EnrolledAt: user.MFAEnrolledAt,
	}, nil
}

func (s *MFAService) discardPending(ctx context.Context, id string) {
	if err := s.enrollmentRepo.Delete(ctx, nil, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to discard pending enrollment", slog.Any("error", err))
	}
}

func (s *MFAService) buildChallenge(enrollmentID, secret, email string, expiresAt time.Time) (*models.EnrollmentChallenge, error) {
	uri := auth.ProvisioningURI(s.config.Issuer, email, secret)

	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("failed to render QR code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.EnrollmentChallenge{
		EnrollmentID: enrollmentID,
		Secret:       secret,
		OTPAuthURL:   uri,
		QRCode:       "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		ExpiresAt:    expiresAt,
	}, nil
}
