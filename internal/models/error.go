package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// MFA enrollment and verification errors
	ErrMFAAlreadyEnabled = errors.New("mfa is already enabled")
	ErrMFANotEnabled     = errors.New("mfa is not enabled")
	ErrMFAInvalidCode    = errors.New("invalid mfa code")
	ErrEnrollmentExpired = errors.New("mfa enrollment has expired")
	ErrTooManyAttempts   = errors.New("too many failed attempts")
	ErrRateLimited       = errors.New("rate limit exceeded")
)
