package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

const DefaultDigits = 6

// HOTP computes an n-digit one-time code from a Base32-encoded secret
// and a counter, per RFC 4226. The counter is serialized as 8-byte
// big-endian, hashed with HMAC-SHA1, dynamically truncated to a 31-bit
// integer and reduced mod 10^digits with left zero padding.
func HOTP(secret string, counter uint64, digits int) (string, error) {
	key, err := DecodeBase32(secret)
	if err != nil {
		return "", fmt.Errorf("invalid hotp secret: %w", err)
	}
	return hotpRaw(key, counter, digits), nil
}

func hotpRaw(key []byte, counter uint64, digits int) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf)
	sum := mac.Sum(nil)

	// Dynamic truncation (RFC 4226 §5.3)
	offset := sum[len(sum)-1] & 0x0F
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF

	return fmt.Sprintf("%0*d", digits, uint64(value)%pow10(digits))
}

// pow10 uses 64-bit arithmetic so 8+ digit codes never overflow
func pow10(n int) uint64 {
	p := uint64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}
