package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// KeyFunc picks the rate-limit bucket for a request.
type KeyFunc func(r *http.Request) string

// ByClientIP buckets requests by the caller's address.
func ByClientIP(r *http.Request) string {
	return "ip:" + extractClientIP(r)
}

// RateLimit returns middleware that admits at most limit requests per window
// for each key. Limiter failures fail open and are logged.
func RateLimit(limiter domain.RateLimiter, scope string, limit int, window time.Duration, key KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := "ratelimit:" + scope + ":" + key(r)

			allowed, err := limiter.Allow(r.Context(), bucket, limit, window)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the socket address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
