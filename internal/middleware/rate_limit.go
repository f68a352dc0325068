package middleware

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/prok/pkg/http"
	"github.com/go-chi/httprate"
)

type clientIPKey struct{}

// ClientIP resolves the caller's address once per request, honouring only
// the configured trusted proxies, and stores it in the request context.
func ClientIP(ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, ipConfig)
			ctx := context.WithValue(r.Context(), clientIPKey{}, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFromRequest returns the address stored by ClientIP, falling back
// to the untrusted remote address when the middleware did not run.
func ClientIPFromRequest(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return pkghttp.ExtractClientIP(r, nil)
}

// RateLimitConfig caps requests per client address within a sliding window
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultLoginRateLimit returns 10 requests per minute
func DefaultLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: time.Minute}
}

// DefaultSignupRateLimit returns 3 requests per minute
func DefaultSignupRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 3, Window: time.Minute}
}

// RateLimitByClientIP limits requests per client address. Every call builds
// an independent counter, so each endpoint gets its own budget.
// Rejected requests get a 429 before any body is read.
func RateLimitByClientIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ClientIPFromRequest(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests, please try again later")
		}),
	)
}
