package auth

import (
	"errors"
	"strings"
)

// base32Alphabet is the standard RFC 4648 alphabet (A-Z, 2-7)
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// ErrInvalidEncoding is returned when Base32 input contains characters
// outside the alphabet after normalization
var ErrInvalidEncoding = errors.New("invalid base32 encoding")

// EncodeBase32 encodes raw bytes as unpadded Base32 text. Input bits are
// packed into 5-bit groups; a final partial group is left-shifted and
// zero-filled.
func EncodeBase32(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow((len(data)*8 + 4) / 5)

	var buf uint16
	var bits uint
	for _, b := range data {
		buf = buf<<8 | uint16(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(base32Alphabet[(buf>>bits)&0x1F])
		}
	}
	if bits > 0 {
		sb.WriteByte(base32Alphabet[(buf<<(5-bits))&0x1F])
	}

	return sb.String()
}

// DecodeBase32 decodes Base32 text back to raw bytes. Input is
// uppercased, trailing '=' padding is stripped, and space/dash
// separators are ignored. Any other character outside the alphabet
// returns ErrInvalidEncoding. A final underfull byte is discarded.
func DecodeBase32(s string) ([]byte, error) {
	cleaned := strings.TrimRight(strings.ToUpper(s), "=")

	out := make([]byte, 0, len(cleaned)*5/8)
	var buf uint16
	var bits uint
	for _, c := range cleaned {
		if c == ' ' || c == '-' {
			continue
		}
		idx := strings.IndexRune(base32Alphabet, c)
		if idx < 0 {
			return nil, ErrInvalidEncoding
		}
		buf = buf<<5 | uint16(idx)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>bits))
		}
	}

	return out, nil
}
