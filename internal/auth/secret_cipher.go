package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	gcmIVSize  = 12
	gcmTagSize = 16
)

var (
	// ErrInvalidFormat is returned when a ciphertext envelope is not
	// exactly three colon-separated hex parts
	ErrInvalidFormat = errors.New("invalid ciphertext envelope format")

	// ErrAuthenticationFailed is returned when the GCM tag does not
	// verify: tampered ciphertext, wrong key, or corrupted IV
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
)

// SecretCipher encrypts TOTP secrets at rest with AES-256-GCM.
// The AES key is derived from the raw master key material by a one-way
// SHA-256 step; the derived key is never stored or transmitted.
type SecretCipher struct {
	key [32]byte
}

// NewSecretCipher derives the cipher key from the raw master key
func NewSecretCipher(rawMasterKey string) *SecretCipher {
	return &SecretCipher{key: sha256.Sum256([]byte(rawMasterKey))}
}

// Encrypt seals plaintext under a fresh random 12-byte IV and returns
// the envelope as "ivHex:tagHex:ciphertextHex".
func (c *SecretCipher) Encrypt(plaintext string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcmIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens an envelope produced by Encrypt. A malformed envelope
// returns ErrInvalidFormat; a failed tag check returns
// ErrAuthenticationFailed, never garbled plaintext.
func (c *SecretCipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", ErrInvalidFormat
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != gcmIVSize {
		return "", ErrInvalidFormat
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != gcmTagSize {
		return "", ErrInvalidFormat
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidFormat
	}

	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}

	return string(plaintext), nil
}

func (c *SecretCipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return gcm, nil
}
