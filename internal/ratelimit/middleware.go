package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"site-orchestrator/internal/telemetry"
)

// Middleware rejects requests over the limit with 429. keyFn defaults to
// ClientIP. Store errors fail open: a broken limiter backend must not take
// down the request path.
func Middleware(l *Limiter, window time.Duration, maxRequests int, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Check(r.Context(), keyFn(r), window, maxRequests)
			if err != nil {
				log.Warn().Err(err).Msg("rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetTime.Unix(), 10))

			if !d.Allowed {
				telemetry.RateLimitRejects.Inc()
				retryAfter := int(time.Until(d.ResetTime).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "rate limited", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
