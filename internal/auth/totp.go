package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultPeriod     = 30 // seconds per time step (RFC 6238)
	DefaultWindow     = 1  // time steps of drift tolerance on each side
	DefaultSecretSize = 20 // 160-bit secrets (RFC 4226 recommendation)
)

// TimeStepCounter maps wall-clock time onto the HOTP counter domain.
// Fractional seconds truncate toward the current step.
func TimeStepCounter(t time.Time, step int) uint64 {
	return uint64(t.Unix()) / uint64(step)
}

// GenerateTOTP computes the code for the time step containing t.
func GenerateTOTP(secret string, t time.Time, step, digits int) (string, error) {
	return HOTP(secret, TimeStepCounter(t, step), digits)
}

// VerifyTOTP checks a submitted code against every counter in
// [current-window, current+window]. All candidates are evaluated with a
// constant-time comparison and no early exit, to reduce timing signal.
// window=0 means exact-step-only.
func VerifyTOTP(secret, submitted string, window int, ref time.Time, step int) (bool, error) {
	digits := len(submitted)
	if digits < 6 || digits > 10 {
		return false, nil
	}
	counter := TimeStepCounter(ref, step)

	match := 0
	for i := -window; i <= window; i++ {
		expected, err := HOTP(secret, counter+uint64(i), digits)
		if err != nil {
			return false, err
		}
		match |= subtle.ConstantTimeCompare([]byte(expected), []byte(submitted))
	}

	return match == 1, nil
}

// GenerateSecret draws sizeBytes from the cryptographically secure
// random source and returns the unpadded Base32 encoding.
func GenerateSecret(sizeBytes int) (string, error) {
	b := make([]byte, sizeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return EncodeBase32(b), nil
}

// ProvisioningURI builds the otpauth:// URI consumed by authenticator
// apps (Key Uri Format). The parameter layout is fixed; authenticators
// are fussy about it.
func ProvisioningURI(issuer, subject, secret string) string {
	label := url.PathEscape(issuer) + ":" + url.PathEscape(subject)
	return fmt.Sprintf("otpauth://totp/%s?secret=%s&issuer=%s&algorithm=SHA1&digits=%d&period=%d",
		label, secret, url.QueryEscape(issuer), DefaultDigits, DefaultPeriod)
}
