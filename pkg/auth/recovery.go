package auth

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost = 14

	RecoveryCodeCount  = 10
	recoveryCodeLength = 10
	// No 0/1/I/L/O, avoids transcription mistakes when codes are printed
	recoveryCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

// GenerateRecoveryCodes returns a fresh set of one-time recovery codes in
// plain text alongside their bcrypt hashes. The plain codes are shown to
// the user exactly once; only the hashes are stored.
func GenerateRecoveryCodes() (plain []string, hashes []string, err error) {
	plain = make([]string, 0, RecoveryCodeCount)
	hashes = make([]string, 0, RecoveryCodeCount)

	for i := 0; i < RecoveryCodeCount; i++ {
		code, err := generateRecoveryCode()
		if err != nil {
			return nil, nil, err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(code), BcryptCost)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash recovery code: %w", err)
		}

		plain = append(plain, formatRecoveryCode(code))
		hashes = append(hashes, string(hash))
	}

	return plain, hashes, nil
}

// CompareRecoveryCode checks a submitted code against a stored hash.
// Formatting dashes and case differences in the submission are ignored.
func CompareRecoveryCode(hash, submitted string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(NormalizeRecoveryCode(submitted)))
}

// NormalizeRecoveryCode strips dashes and spaces and uppercases the code
func NormalizeRecoveryCode(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c == '-' || c == ' ':
			continue
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func generateRecoveryCode() (string, error) {
	// Rejection sampling keeps every symbol equally likely; a plain
	// modulo would skew toward the front of the charset
	limit := byte(256 - 256%len(recoveryCodeCharset))

	out := make([]byte, 0, recoveryCodeLength)
	buf := make([]byte, recoveryCodeLength)
	for len(out) < recoveryCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate recovery code: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, recoveryCodeCharset[int(b)%len(recoveryCodeCharset)])
			if len(out) == recoveryCodeLength {
				break
			}
		}
	}

	return string(out), nil
}

// formatRecoveryCode inserts a dash in the middle for readability
func formatRecoveryCode(code string) string {
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}
