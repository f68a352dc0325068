package routes

import (
	"github.com/BradenHooton/prok/internal/auth"
	"github.com/BradenHooton/prok/internal/handlers"
	"github.com/BradenHooton/prok/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Limits holds the per-endpoint request budgets
type Limits struct {
	Login  middleware.RateLimitConfig
	Signup middleware.RateLimitConfig
}

// DefaultLimits returns 10/min for login and 3/min for signup
func DefaultLimits() Limits {
	return Limits{
		Login:  middleware.DefaultLoginRateLimit(),
		Signup: middleware.DefaultSignupRateLimit(),
	}
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	tokenManager *auth.TokenManager,
	health handlers.HealthChecker,
	limits Limits,
) {
	router.Get("/health", handlers.Health(health))

	// Public routes - each endpoint has its own counter
	router.With(middleware.RateLimitByClientIP(limits.Signup)).Post("/auth/signup", authHandler.Signup)
	router.With(middleware.RateLimitByClientIP(limits.Login)).Post("/auth/login", authHandler.Login)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Get("/auth/me", authHandler.Me)
	})
}
