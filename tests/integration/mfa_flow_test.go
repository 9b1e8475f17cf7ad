package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need Docker for the PostgreSQL testcontainer. They are
// gated behind INTEGRATION_TESTS so the default test run stays hermetic.
func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests")
	}
}

func TestMFAEnrollmentFlow(t *testing.T) {
	skipUnlessIntegration(t)

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, name := TestUser("enroll")
	user, err := SeedUser(ctx, testDB.Pool, email, name)
	require.NoError(t, err)

	token, err := ts.AccessTokenFor(user.ID, user.Email)
	require.NoError(t, err)

	// Status starts disabled
	resp, err := ts.RequestWithAuth(http.MethodGet, "/mfa/status", token, nil)
	require.NoError(t, err)
	var status struct {
		Enabled bool `json:"enabled"`
	}
	require.NoError(t, ParseJSONResponse(resp, &status))
	assert.False(t, status.Enabled)

	// Start enrollment
	resp, err = ts.RequestWithAuth(http.MethodPost, "/mfa/enroll", token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var challenge struct {
		EnrollmentID string    `json:"enrollment_id"`
		Secret       string    `json:"secret"`
		OTPAuthURL   string    `json:"otpauth_url"`
		QRCode       string    `json:"qr_code"`
		ExpiresAt    time.Time `json:"expires_at"`
	}
	require.NoError(t, ParseJSONResponse(resp, &challenge))
	assert.NotEmpty(t, challenge.Secret)
	assert.Contains(t, challenge.OTPAuthURL, "otpauth://totp/")
	assert.Contains(t, challenge.QRCode, "data:image/png;base64,")

	// A wrong code does not activate
	resp, err = ts.RequestWithAuth(http.MethodPost, "/mfa/enroll/confirm", token,
		map[string]string{"code": "000000"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Confirm with a live authenticator code
	code, err := totp.GenerateCode(challenge.Secret, time.Now())
	require.NoError(t, err)

	resp, err = ts.RequestWithAuth(http.MethodPost, "/mfa/enroll/confirm", token,
		map[string]string{"code": code, "enrollment_id": challenge.EnrollmentID})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var confirmed struct {
		Success       bool     `json:"success"`
		MFAEnabled    bool     `json:"mfa_enabled"`
		RecoveryCodes []string `json:"recovery_codes"`
	}
	require.NoError(t, ParseJSONResponse(resp, &confirmed))
	assert.True(t, confirmed.Success)
	assert.Len(t, confirmed.RecoveryCodes, 10)

	// Enablement notification went out
	last := ts.EmailService.GetLastEmail()
	require.NotNil(t, last)
	assert.Equal(t, email, last.To)

	// Second enrollment attempt conflicts
	resp, err = ts.RequestWithAuth(http.MethodPost, "/mfa/enroll", token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Login verification with a fresh code succeeds and upgrades the token
	code, err = totp.GenerateCode(challenge.Secret, time.Now())
	require.NoError(t, err)

	resp, err = ts.RequestWithAuth(http.MethodPost, "/mfa/verify", token,
		map[string]string{"code": code})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var verified struct {
		Valid       bool   `json:"valid"`
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, ParseJSONResponse(resp, &verified))
	assert.True(t, verified.Valid)
	assert.NotEmpty(t, verified.AccessToken)

	claims, err := ts.TokenManager.ValidateToken(verified.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.MFAVerified)

	// A recovery code works exactly once
	recovery := confirmed.RecoveryCodes[0]
	resp, err = ts.RequestWithAuth(http.MethodPost, "/mfa/recovery/verify", token,
		map[string]string{"code": recovery})
	require.NoError(t, err)
	require.NoError(t, ParseJSONResponse(resp, &verified))
	assert.True(t, verified.Valid)

	resp, err = ts.RequestWithAuth(http.MethodPost, "/mfa/recovery/verify", token,
		map[string]string{"code": recovery})
	require.NoError(t, err)
	require.NoError(t, ParseJSONResponse(resp, &verified))
	assert.False(t, verified.Valid)
}

func TestMFALoginSoftFailureAndLockout(t *testing.T) {
	skipUnlessIntegration(t)

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, name := TestUser("lockout")
	user, err := SeedUser(ctx, testDB.Pool, email, name)
	require.NoError(t, err)

	secret, err := SeedEnabledCredential(ctx, testDB.Pool, ts.SecretCipher, user.ID)
	require.NoError(t, err)

	token, err := ts.AccessTokenFor(user.ID, user.Email)
	require.NoError(t, err)

	// Wrong codes come back 200 valid=false until the attempt cap
	var verified struct {
		Valid bool `json:"valid"`
	}
	for i := 0; i < ts.Config.MFA.MaxAttempts; i++ {
		resp, err := ts.RequestWithAuth(http.MethodPost, "/mfa/verify", token,
			map[string]string{"code": "000000"})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, ParseJSONResponse(resp, &verified))
		assert.False(t, verified.Valid)
	}

	// Cap reached: even a correct code is rejected with 429
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	resp, err := ts.RequestWithAuth(http.MethodPost, "/mfa/verify", token,
		map[string]string{"code": code})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestMFADisableFlow(t *testing.T) {
	skipUnlessIntegration(t)

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, name := TestUser("disable")
	user, err := SeedUser(ctx, testDB.Pool, email, name)
	require.NoError(t, err)

	_, err = SeedEnabledCredential(ctx, testDB.Pool, ts.SecretCipher, user.ID)
	require.NoError(t, err)

	token, err := ts.AccessTokenFor(user.ID, user.Email)
	require.NoError(t, err)

	// An authenticated session disables without any code confirmation
	resp, err := ts.RequestWithAuth(http.MethodPost, "/mfa/disable", token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var disabled struct {
		Success    bool `json:"success"`
		MFAEnabled bool `json:"mfa_enabled"`
	}
	require.NoError(t, ParseJSONResponse(resp, &disabled))
	assert.True(t, disabled.Success)
	assert.False(t, disabled.MFAEnabled)

	// Status reflects the removal
	resp, err = ts.RequestWithAuth(http.MethodGet, "/mfa/status", token, nil)
	require.NoError(t, err)
	var status struct {
		Enabled bool `json:"enabled"`
	}
	require.NoError(t, ParseJSONResponse(resp, &status))
	assert.False(t, status.Enabled)

	// A second disable is a no-op, not an error
	resp, err = ts.RequestWithAuth(http.MethodPost, "/mfa/disable", token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
