package auth

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rfc4226Secret is the ASCII secret "12345678901234567890" from RFC 4226
// Appendix D, Base32-encoded.
const rfc4226Secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestBase32_RoundTrip(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 5, 7, 16, 20, 32, 63} {
		b := make([]byte, size)
		_, err := rand.Read(b)
		require.NoError(t, err)

		encoded := EncodeBase32(b)
		decoded, err := DecodeBase32(encoded)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(b, decoded), "round trip failed for size %d", size)
	}
}

func TestBase32_EncodeKnownValue(t *testing.T) {
	// "12345678901234567890" per RFC 4226 Appendix D
	encoded := EncodeBase32([]byte("12345678901234567890"))
	assert.Equal(t, rfc4226Secret, encoded)
}

func TestBase32_EncodeEmptyInput(t *testing.T) {
	assert.Equal(t, "", EncodeBase32(nil))
}

func TestBase32_DecodeNormalizes(t *testing.T) {
	want, err := DecodeBase32(rfc4226Secret)
	require.NoError(t, err)

	for _, in := range []string{
		strings.ToLower(rfc4226Secret),
		rfc4226Secret + "====",
		"GEZD GNBV GY3T QOJQ GEZD GNBV GY3T QOJQ",
		"GEZDGNBVGY3TQOJQ-GEZDGNBVGY3TQOJQ",
	} {
		got, err := DecodeBase32(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestBase32_DecodeRejectsInvalidCharacters(t *testing.T) {
	for _, in := range []string{"ABC1", "ABC!", "ABC0", "ABC8"} {
		_, err := DecodeBase32(in)
		assert.ErrorIs(t, err, ErrInvalidEncoding, "input %q", in)
	}
}

func TestHOTP_RFC4226Vectors(t *testing.T) {
	// RFC 4226 Appendix D reference values for counters 0..9
	vectors := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}

	for counter, want := range vectors {
		got, err := HOTP(rfc4226Secret, uint64(counter), 6)
		require.NoError(t, err)
		assert.Equal(t, want, got, "counter %d", counter)
	}
}

func TestHOTP_DigitCount(t *testing.T) {
	for _, digits := range []int{6, 7, 8} {
		code, err := HOTP(rfc4226Secret, 1, digits)
		require.NoError(t, err)
		assert.Len(t, code, digits)
	}
}

func TestHOTP_Deterministic(t *testing.T) {
	first, err := HOTP(rfc4226Secret, 42, 6)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := HOTP(rfc4226Secret, 42, 6)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestHOTP_LargeCounter(t *testing.T) {
	code, err := HOTP(rfc4226Secret, 1<<40, 6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestHOTP_InvalidSecret(t *testing.T) {
	_, err := HOTP("not base32!", 0, 6)
	assert.Error(t, err)
}

func TestTimeStepCounter_FloorsFractionalTime(t *testing.T) {
	base := time.Unix(59, 0)
	assert.Equal(t, uint64(1), TimeStepCounter(base, 30))
	assert.Equal(t, uint64(2), TimeStepCounter(time.Unix(60, 0), 30))
	assert.Equal(t, uint64(1), TimeStepCounter(time.Unix(59, 999_000_000), 30))
}

func TestGenerateTOTP_MatchesReferenceImplementation(t *testing.T) {
	secret, err := GenerateSecret(DefaultSecretSize)
	require.NoError(t, err)

	at := time.Unix(1700000000, 0)
	ours, err := GenerateTOTP(secret, at, DefaultPeriod, DefaultDigits)
	require.NoError(t, err)

	theirs, err := totp.GenerateCode(secret, at)
	require.NoError(t, err)

	assert.Equal(t, theirs, ours)
}

func TestVerifyTOTP_WindowSemantics(t *testing.T) {
	ref := time.Unix(1700000010, 0) // 10s into a step

	code, err := GenerateTOTP(rfc4226Secret, ref, DefaultPeriod, DefaultDigits)
	require.NoError(t, err)

	// Code for the current step passes at window=0
	ok, err := VerifyTOTP(rfc4226Secret, code, 0, ref, DefaultPeriod)
	require.NoError(t, err)
	assert.True(t, ok)

	// A code generated 19s later is still the same step
	sameStep, err := GenerateTOTP(rfc4226Secret, ref.Add(19*time.Second), DefaultPeriod, DefaultDigits)
	require.NoError(t, err)
	ok, err = VerifyTOTP(rfc4226Secret, sameStep, 0, ref, DefaultPeriod)
	require.NoError(t, err)
	assert.True(t, ok)

	// The next step fails at window=0 but passes at window=1
	nextStep, err := GenerateTOTP(rfc4226Secret, ref.Add(30*time.Second), DefaultPeriod, DefaultDigits)
	require.NoError(t, err)
	ok, err = VerifyTOTP(rfc4226Secret, nextStep, 0, ref, DefaultPeriod)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = VerifyTOTP(rfc4226Secret, nextStep, 1, ref, DefaultPeriod)
	require.NoError(t, err)
	assert.True(t, ok)

	// Two steps away fails even at window=1
	twoSteps, err := GenerateTOTP(rfc4226Secret, ref.Add(70*time.Second), DefaultPeriod, DefaultDigits)
	require.NoError(t, err)
	ok, err = VerifyTOTP(rfc4226Secret, twoSteps, 1, ref, DefaultPeriod)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTOTP_RejectsMalformedCode(t *testing.T) {
	ok, err := VerifyTOTP(rfc4226Secret, "", 1, time.Now(), DefaultPeriod)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifyTOTP(rfc4226Secret, "12345", 1, time.Now(), DefaultPeriod)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateSecret_Properties(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		secret, err := GenerateSecret(DefaultSecretSize)
		require.NoError(t, err)
		assert.Len(t, secret, 32) // 20 bytes -> 32 base32 chars, no padding
		assert.NotContains(t, secret, "=")
		assert.False(t, seen[secret], "duplicate secret generated")
		seen[secret] = true

		raw, err := DecodeBase32(secret)
		require.NoError(t, err)
		assert.Len(t, raw, DefaultSecretSize)
	}
}

func TestProvisioningURI_Format(t *testing.T) {
	uri := ProvisioningURI("ChronoCraft", "user@example.com", rfc4226Secret)

	assert.Equal(t,
		"otpauth://totp/ChronoCraft:user@example.com?secret="+rfc4226Secret+
			"&issuer=ChronoCraft&algorithm=SHA1&digits=6&period=30",
		uri)
}

func TestProvisioningURI_EscapesLabel(t *testing.T) {
	uri := ProvisioningURI("Chrono Craft", "u1", "ABCD")
	assert.Contains(t, uri, "otpauth://totp/Chrono%20Craft:u1?")
	assert.Contains(t, uri, "issuer=Chrono+Craft")
}
