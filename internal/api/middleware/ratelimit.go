// SPDX-License-Identifier: MIT

package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig configures the per-client limiter.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// KeyFunc defaults to the client IP.
	KeyFunc func(r *http.Request) (string, error)
	// Exempt paths skip the limiter, e.g. health checks and scrapes.
	Exempt []string
}

// RateLimit limits requests per client with a sliding window counter.
// Rejected requests get a JSON 429 and a Retry-After of one window.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.Window.Seconds())))

	limit := httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":  "rate_limit_exceeded",
				"detail": "too many requests, retry after " + retryAfter + "s",
			})
		}),
	)

	exempt := make(map[string]struct{}, len(cfg.Exempt))
	for _, p := range cfg.Exempt {
		exempt[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}
