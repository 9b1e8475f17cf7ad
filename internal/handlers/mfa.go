package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/John-CFO/chronocraft-api/internal/auth"
	"github.com/John-CFO/chronocraft-api/internal/models"
	"github.com/John-CFO/chronocraft-api/internal/services"
	pkghttp "github.com/John-CFO/chronocraft-api/pkg/http"
	"github.com/John-CFO/chronocraft-api/pkg/logger"
)

// MFAHandler handles MFA-related HTTP requests
type MFAHandler struct {
	mfaService *services.MFAService
	verifier   *services.LoginVerifier
	audit      *logger.AuditLogger
	ipConfig   *pkghttp.IPConfig
	logger     *slog.Logger
}

// NewMFAHandler creates a new MFA handler
func NewMFAHandler(
	mfaService *services.MFAService,
	verifier *services.LoginVerifier,
	audit *logger.AuditLogger,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *MFAHandler {
	return &MFAHandler{
		mfaService: mfaService,
		verifier:   verifier,
		audit:      audit,
		ipConfig:   ipConfig,
		logger:     logger,
	}
}

// Status handles GET /mfa/status
func (h *MFAHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.mfaService.GetStatus(r.Context(), user.UserID)
	if err != nil {
		h.writeMFAError(w, err, user.UserID)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MFAStatusResponse{
		Enabled:    status.Enabled,
		EnrolledAt: status.EnrolledAt,
	})
}

// StartEnrollment handles POST /mfa/enroll
func (h *MFAHandler) StartEnrollment(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	challenge, err := h.mfaService.StartEnrollment(r.Context(), user.UserID)
	if err != nil {
		h.writeMFAError(w, err, user.UserID)
		return
	}

	h.audit.LogMFAEvent(logger.AuditEvent{
		EventType: logger.EventEnrollmentStarted,
		UserID:    user.UserID,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
		Success:   true,
	})

	pkghttp.WriteJSON(w, http.StatusOK, StartEnrollmentResponse{
		EnrollmentID: challenge.EnrollmentID,
		Secret:       challenge.Secret,
		OTPAuthURL:   challenge.OTPAuthURL,
		QRCode:       challenge.QRCode,
		ExpiresAt:    challenge.ExpiresAt,
	})
}

// ConfirmEnrollment handles POST /mfa/enroll/confirm
func (h *MFAHandler) ConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ConfirmEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.mfaService.ConfirmEnrollment(r.Context(), user.UserID, req.EnrollmentID, req.Code)
	if err != nil {
		h.audit.LogMFAEvent(logger.AuditEvent{
			EventType:     logger.EventEnrollmentFailed,
			UserID:        user.UserID,
			IPAddress:     pkghttp.ExtractClientIP(r, h.ipConfig),
			UserAgent:     r.UserAgent(),
			Success:       false,
			FailureReason: err.Error(),
		})
		h.writeMFAError(w, err, user.UserID)
		return
	}

	h.audit.LogMFAEvent(logger.AuditEvent{
		EventType: logger.EventEnrollmentConfirmed,
		UserID:    user.UserID,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
		Success:   true,
	})

	pkghttp.WriteJSON(w, http.StatusOK, ConfirmEnrollmentResponse{
		Success:       true,
		MFAEnabled:    true,
		RecoveryCodes: result.RecoveryCodes,
		EnabledAt:     result.EnabledAt,
	})
}

// VerifyLogin handles POST /mfa/verify
func (h *MFAHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req VerifyLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.verifier.VerifyLogin(r.Context(), user.UserID, req.Code)
	if err != nil {
		h.writeMFAError(w, err, user.UserID)
		return
	}

	h.audit.LogMFAEvent(logger.AuditEvent{
		EventType: eventForOutcome(result.Valid),
		UserID:    user.UserID,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
		Success:   result.Valid,
	})

	// A wrong code is a 200 with valid=false; the client shows the
	// message and lets the user retry
	pkghttp.WriteJSON(w, http.StatusOK, VerifyLoginResponse{
		Valid:       result.Valid,
		Message:     result.Message,
		AccessToken: result.Token,
	})
}

// VerifyRecoveryCode handles POST /mfa/recovery/verify
func (h *MFAHandler) VerifyRecoveryCode(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req VerifyRecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.verifier.VerifyRecoveryCode(r.Context(), user.UserID, req.Code)
	if err != nil {
		h.writeMFAError(w, err, user.UserID)
		return
	}

	if result.Valid {
		h.audit.LogMFAEvent(logger.AuditEvent{
			EventType: logger.EventRecoveryCodeUsed,
			UserID:    user.UserID,
			IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
			UserAgent: r.UserAgent(),
			Success:   true,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifyLoginResponse{
		Valid:       result.Valid,
		Message:     result.Message,
		AccessToken: result.Token,
	})
}

// DisableMFA handles POST /mfa/disable
func (h *MFAHandler) DisableMFA(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.mfaService.DisableMFA(r.Context(), user.UserID); err != nil {
		h.writeMFAError(w, err, user.UserID)
		return
	}

	h.audit.LogMFAEvent(logger.AuditEvent{
		EventType: logger.EventMFADisabled,
		UserID:    user.UserID,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
		Success:   true,
	})

	pkghttp.WriteJSON(w, http.StatusOK, DisableMFAResponse{
		Success:    true,
		MFAEnabled: false,
	})
}

// writeMFAError maps service sentinels onto HTTP responses
func (h *MFAHandler) writeMFAError(w http.ResponseWriter, err error, userID string) {
	switch {
	case errors.Is(err, models.ErrMFAAlreadyEnabled):
		pkghttp.WriteConflict(w, "MFA is already enabled")
	case errors.Is(err, models.ErrMFANotEnabled):
		pkghttp.WriteBadRequest(w, "MFA is not enabled")
	case errors.Is(err, models.ErrMFAInvalidCode):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Verification failed")
	case errors.Is(err, models.ErrEnrollmentExpired):
		pkghttp.WriteError(w, http.StatusGone, "enrollment_expired", "Enrollment has expired, start again")
	case errors.Is(err, models.ErrTooManyAttempts), errors.Is(err, models.ErrRateLimited):
		pkghttp.WriteTooManyRequests(w, "Too many attempts, try again later")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Forbidden")
	default:
		h.logger.Error("MFA request failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Request failed")
	}
}

func eventForOutcome(valid bool) string {
	if valid {
		return logger.EventLoginVerified
	}
	return logger.EventLoginRejected
}
