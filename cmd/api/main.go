package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/John-CFO/chronocraft-api/internal/auth"
	"github.com/John-CFO/chronocraft-api/internal/background"
	"github.com/John-CFO/chronocraft-api/internal/config"
	"github.com/John-CFO/chronocraft-api/internal/database"
	"github.com/John-CFO/chronocraft-api/internal/handlers"
	middlewareCustom "github.com/John-CFO/chronocraft-api/internal/middleware"
	"github.com/John-CFO/chronocraft-api/internal/repositories"
	"github.com/John-CFO/chronocraft-api/internal/routes"
	"github.com/John-CFO/chronocraft-api/internal/services"
	pkghttp "github.com/John-CFO/chronocraft-api/pkg/http"
	pkglogger "github.com/John-CFO/chronocraft-api/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Apply migrations
	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	enrollmentRepo := repositories.NewPendingEnrollmentRepository(db)
	credentialRepo := repositories.NewMFACredentialRepository(db)
	rateLimitRepo := repositories.NewRateLimitRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(enrollmentRepo, rateLimitRepo, logger, cfg.MFA.CleanupInterval)

	// Initialize token manager and secret cipher
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	secretCipher := auth.NewSecretCipher(cfg.MFA.MasterKey)

	// Security services
	auditLogger := pkglogger.NewAuditLogger(logger)
	rateLimitService := services.NewRateLimitService(rateLimitRepo, logger)

	// Email delivery (SES, or log-only when not configured)
	var emailService services.EmailService
	if cfg.Email.Enabled {
		sesService, err := services.NewAWSSESEmailService(cfg.Email.Region, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailService = sesService
	} else {
		emailService = services.NewNoopEmailService(logger)
	}

	// Initialize services
	mfaConfig := services.MFAConfig{
		Issuer:             cfg.MFA.Issuer,
		MaxAttempts:        cfg.MFA.MaxAttempts,
		AttemptWindow:      cfg.MFA.AttemptWindow,
		EnrollmentTTL:      cfg.MFA.EnrollmentTTL,
		EnrollmentCooldown: cfg.MFA.EnrollmentCooldown,
	}
	mfaService := services.NewMFAService(userRepo, enrollmentRepo, credentialRepo, db, secretCipher, emailService, logger, mfaConfig)
	loginVerifier := services.NewLoginVerifier(userRepo, credentialRepo, secretCipher, tokenManager, rateLimitService, logger, mfaConfig)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{}
	mfaHandler := handlers.NewMFAHandler(mfaService, loginVerifier, auditLogger, ipConfig, logger)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, mfaHandler, tokenManager)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
