package routes

import (
	"github.com/John-CFO/chronocraft-api/internal/auth"
	"github.com/John-CFO/chronocraft-api/internal/handlers"
	"github.com/John-CFO/chronocraft-api/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	mfaHandler *handlers.MFAHandler,
	tokenManager *auth.TokenManager,
) {
	rateLimitConfig := middleware.DefaultMFARateLimit()

	// All MFA routes require an authenticated user. Code-accepting
	// endpoints get the per-IP limiter on top of the per-user counters.
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		r.Get("/mfa/status", mfaHandler.Status)
		r.Post("/mfa/enroll", mfaHandler.StartEnrollment)
		r.Post("/mfa/disable", mfaHandler.DisableMFA)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(rateLimitConfig))

			r.Post("/mfa/enroll/confirm", mfaHandler.ConfirmEnrollment)
			r.Post("/mfa/verify", mfaHandler.VerifyLogin)
			r.Post("/mfa/recovery/verify", mfaHandler.VerifyRecoveryCode)
		})
	})
}
