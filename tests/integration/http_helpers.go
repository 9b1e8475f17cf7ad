package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/John-CFO/chronocraft-api/internal/auth"
	"github.com/John-CFO/chronocraft-api/internal/config"
	"github.com/John-CFO/chronocraft-api/internal/database"
	"github.com/John-CFO/chronocraft-api/internal/handlers"
	middlewareCustom "github.com/John-CFO/chronocraft-api/internal/middleware"
	"github.com/John-CFO/chronocraft-api/internal/routes"
	"github.com/John-CFO/chronocraft-api/internal/services"
	pkghttp "github.com/John-CFO/chronocraft-api/pkg/http"
	pkglogger "github.com/John-CFO/chronocraft-api/pkg/logger"
)

// SentEmail represents a captured email notification
type SentEmail struct {
	To      string
	Subject string
}

// CapturingEmailService records MFA notifications for test assertions
type CapturingEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

func (c *CapturingEmailService) SendMFAEnabledNotification(ctx context.Context, email, name string) error {
	c.record(email, "Two-factor authentication enabled")
	return nil
}

func (c *CapturingEmailService) SendMFADisabledNotification(ctx context.Context, email, name string) error {
	c.record(email, "Two-factor authentication disabled")
	return nil
}

func (c *CapturingEmailService) record(to, subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SentEmails = append(c.SentEmails, SentEmail{To: to, Subject: subject})
}

// GetLastEmail returns the most recent notification sent
func (c *CapturingEmailService) GetLastEmail() *SentEmail {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.SentEmails) == 0 {
		return nil
	}
	return &c.SentEmails[len(c.SentEmails)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *CapturingEmailService
	Config       *config.Config

	// Dependency references for inspection in tests
	TokenManager *auth.TokenManager
	SecretCipher *auth.SecretCipher
	logger       *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database + captured email
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:         "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry: 15 * time.Minute,
		},
		MFA: config.MFAConfig{
			Issuer:             "ChronoCraftTest",
			MasterKey:          "test-master-key-32-characters!!!",
			MaxAttempts:        5,
			AttemptWindow:      10 * time.Minute,
			EnrollmentTTL:      1 * time.Hour,
			EnrollmentCooldown: 60 * time.Second,
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
		},
	}

	userRepo, enrollmentRepo, credentialRepo, rateLimitRepo := InitializeRepositories(db)

	mockEmail := &CapturingEmailService{
		SentEmails: []SentEmail{},
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	secretCipher := auth.NewSecretCipher(cfg.MFA.MasterKey)

	auditLogger := pkglogger.NewAuditLogger(logger)
	rateLimitService := services.NewRateLimitService(rateLimitRepo, logger)

	mfaConfig := services.MFAConfig{
		Issuer:             cfg.MFA.Issuer,
		MaxAttempts:        cfg.MFA.MaxAttempts,
		AttemptWindow:      cfg.MFA.AttemptWindow,
		EnrollmentTTL:      cfg.MFA.EnrollmentTTL,
		EnrollmentCooldown: cfg.MFA.EnrollmentCooldown,
	}
	mfaService := services.NewMFAService(userRepo, enrollmentRepo, credentialRepo, db, secretCipher, mockEmail, logger, mfaConfig)
	loginVerifier := services.NewLoginVerifier(userRepo, credentialRepo, secretCipher, tokenManager, rateLimitService, logger, mfaConfig)

	ipConfig := &pkghttp.IPConfig{}
	mfaHandler := handlers.NewMFAHandler(mfaService, loginVerifier, auditLogger, ipConfig, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, mfaHandler, tokenManager)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: mockEmail,
		Config:       cfg,
		TokenManager: tokenManager,
		SecretCipher: secretCipher,
		logger:       logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// AccessTokenFor issues a signed access token for the given user, the
// same way the login flow would before MFA verification.
func (ts *TestServer) AccessTokenFor(userID, email string) (string, error) {
	return ts.TokenManager.GenerateAccessToken(userID, email, false)
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
