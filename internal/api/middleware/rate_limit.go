package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/davidocha/coinvault/internal/api/problem"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter throttles unauthenticated routes by client IP. The
// webhook and health endpoints sit behind this one.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceeded(rps, "IP")),
	)
}

// AuthRateLimiter throttles authenticated traffic per user so one account
// cannot starve the others behind a shared egress IP.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if userID := UserIDFromContext(r.Context()); userID != "" {
				return userID, nil
			}
			return httprate.KeyByRealIP(r)
		}),
		httprate.WithLimitHandler(rateLimitExceeded(rps, "user")),
	)
}

func rateLimitExceeded(rps int, scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problem.Write(
			w,
			r,
			http.StatusTooManyRequests,
			problem.Type("rate-limit-exceeded"),
			http.StatusText(http.StatusTooManyRequests),
			fmt.Sprintf("Rate limit of %d req/s exceeded for this %s", rps, scope),
		)
	}
}
