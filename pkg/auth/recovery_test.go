package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRecoveryCodes(t *testing.T) {
	plain, hashes, err := GenerateRecoveryCodes()
	require.NoError(t, err)
	require.Len(t, plain, RecoveryCodeCount)
	require.Len(t, hashes, RecoveryCodeCount)

	seen := make(map[string]bool)
	for i, code := range plain {
		// Formatted as XXXXX-XXXXX from the safe charset
		parts := strings.Split(code, "-")
		require.Len(t, parts, 2, "code %q should have one dash", code)
		for _, c := range parts[0] + parts[1] {
			assert.Contains(t, recoveryCodeCharset, string(c))
		}

		assert.False(t, seen[code], "duplicate recovery code generated")
		seen[code] = true

		assert.NoError(t, CompareRecoveryCode(hashes[i], code))
	}
}

func TestGenerateRecoveryCode_FullLength(t *testing.T) {
	// Resampling after rejected bytes must still fill every position
	for i := 0; i < 50; i++ {
		code, err := generateRecoveryCode()
		require.NoError(t, err)
		assert.Len(t, code, recoveryCodeLength)
		for _, c := range code {
			assert.Contains(t, recoveryCodeCharset, string(c))
		}
	}
}

func TestCompareRecoveryCode_NormalizesInput(t *testing.T) {
	plain, hashes, err := GenerateRecoveryCodes()
	require.NoError(t, err)

	code := plain[0]
	hash := hashes[0]

	assert.NoError(t, CompareRecoveryCode(hash, strings.ToLower(code)))
	assert.NoError(t, CompareRecoveryCode(hash, strings.ReplaceAll(code, "-", " ")))
	assert.NoError(t, CompareRecoveryCode(hash, strings.ReplaceAll(code, "-", "")))
}

func TestCompareRecoveryCode_WrongCode(t *testing.T) {
	_, hashes, err := GenerateRecoveryCodes()
	require.NoError(t, err)

	assert.Error(t, CompareRecoveryCode(hashes[0], "WRONG-CODE99"))
}

func TestNormalizeRecoveryCode(t *testing.T) {
	assert.Equal(t, "ABCDE23456", NormalizeRecoveryCode("abcde-23456"))
	assert.Equal(t, "ABCDE23456", NormalizeRecoveryCode("ABCDE 23456"))
	assert.Equal(t, "ABCDE23456", NormalizeRecoveryCode("ABCDE23456"))
}
