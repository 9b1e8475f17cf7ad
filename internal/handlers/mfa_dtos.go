package handlers

import "time"

// Enrollment DTOs

// StartEnrollmentResponse carries everything the client needs to show
// the setup screen: the secret for manual entry, the otpauth URI, and a
// rendered QR code.
type StartEnrollmentResponse struct {
	EnrollmentID string    `json:"enrollment_id"`
	Secret       string    `json:"secret"`      // Base32, for manual entry
	OTPAuthURL   string    `json:"otpauth_url"` // otpauth:// URI
	QRCode       string    `json:"qr_code"`     // PNG data URL
	ExpiresAt    time.Time `json:"expires_at"`
}

// ConfirmEnrollmentRequest carries the first authenticator code.
// EnrollmentID is optional; when present it must match the active
// enrollment.
type ConfirmEnrollmentRequest struct {
	Code         string `json:"code" validate:"required,len=6,numeric"`
	EnrollmentID string `json:"enrollment_id,omitempty" validate:"omitempty,uuid"`
}

// ConfirmEnrollmentResponse confirms activation. Recovery codes are
// shown here exactly once.
type ConfirmEnrollmentResponse struct {
	Success       bool      `json:"success"`
	MFAEnabled    bool      `json:"mfa_enabled"`
	RecoveryCodes []string  `json:"recovery_codes"`
	EnabledAt     time.Time `json:"enabled_at"`
}

// Login verification DTOs

// VerifyLoginRequest carries a login-time TOTP code
type VerifyLoginRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyRecoveryRequest carries a one-time recovery code. Codes are 10
// characters plus optional formatting.
type VerifyRecoveryRequest struct {
	Code string `json:"code" validate:"required,min=8,max=16"`
}

// VerifyLoginResponse is the soft verification outcome. A wrong code
// yields valid=false with HTTP 200.
type VerifyLoginResponse struct {
	Valid       bool   `json:"valid"`
	Message     string `json:"message,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// Disable DTOs

// DisableMFAResponse confirms the factor was removed
type DisableMFAResponse struct {
	Success    bool `json:"success"`
	MFAEnabled bool `json:"mfa_enabled"`
}

// Status DTO

// MFAStatusResponse shows the current MFA state for the caller
type MFAStatusResponse struct {
	Enabled    bool       `json:"enabled"`
	EnrolledAt *time.Time `json:"enrolled_at,omitempty"`
}
