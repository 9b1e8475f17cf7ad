package models

import (
	"time"
)

// PendingEnrollment represents an in-progress MFA setup attempt.
// The TOTP secret is stored encrypted (iv:tag:ciphertext hex envelope)
// and the record self-expires one hour after creation.
type PendingEnrollment struct {
	ID              string
	UserID          string
	EncryptedSecret string
	FailedAttempts  int
	LastFailedAt    *time.Time
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// IsExpired reports whether the enrollment is past its expiry.
// Expired records must be treated as absent.
func (e *PendingEnrollment) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// MFACredential represents a confirmed, enabled TOTP factor for a user.
// At most one exists per user.
type MFACredential struct {
	UserID            string
	EncryptedSecret   string
	Enabled           bool
	RecoveryCodes     []RecoveryCodeEntry
	FailedLogins      int
	LastFailedLoginAt *time.Time
	LastVerifiedAt    *time.Time
	CreatedAt         time.Time
}

// RecoveryCodeEntry is a single-use recovery code (bcrypt hashed)
type RecoveryCodeEntry struct {
	CodeHash  string     `json:"code_hash"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// EnrollmentChallenge is returned from StartEnrollment. Secret is the
// plaintext Base32 secret; it is exposed exactly once, at issuance.
type EnrollmentChallenge struct {
	EnrollmentID string
	Secret       string
	OTPAuthURL   string
	QRCode       string // PNG data URL
	ExpiresAt    time.Time
}

// EnrollmentResult is returned from a successful ConfirmEnrollment
type EnrollmentResult struct {
	RecoveryCodes []string
	EnabledAt     time.Time
}

// LoginVerification is the soft result of a login-time code check.
// A wrong code yields Valid=false rather than an error so callers can
// distinguish "wrong code" from hard failures.
type LoginVerification struct {
	Valid   bool
	Message string
	Token   string // elevated access token, set only when Valid
}

// MFAStatus reports whether a user has an enabled TOTP factor
type MFAStatus struct {
	Enabled    bool       `json:"enabled"`
	EnrolledAt *time.Time `json:"enrolled_at,omitempty"`
}
