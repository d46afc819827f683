// Package middleware provides HTTP middleware for the wallet layer.
package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

// RateLimiter throttles requests per key with a token bucket per user.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	window   string
	perMin   int
	keyFn    func(*http.Request) string
	log      *logger.Logger
}

// NewRateLimiter builds a per-key limiter allowing requestsPerMinute
// sustained with a burst of the same size. keyFn extracts the throttle key
// from the request; nil falls back to the remote address.
func NewRateLimiter(requestsPerMinute int, keyFn func(*http.Request) string, log *logger.Logger) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if keyFn == nil {
		keyFn = func(r *http.Request) string { return r.RemoteAddr }
	}
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    requestsPerMinute,
		window:   "1m",
		perMin:   requestsPerMinute,
		keyFn:    keyFn,
		log:      log,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler returns the rate limiting middleware.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.keyFn(r)
		if key == "" {
			key = r.RemoteAddr
		}

		if !rl.getLimiter(key).Allow() {
			rl.log.Warn("rate limit exceeded", "key", key, "path", r.URL.Path)
			svcErr := errors.RateLimitExceeded(rl.perMin, rl.window)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(svcErr.HTTPStatus)
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   svcErr,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// StartCleanup periodically resets the limiter table so idle keys do not
// accumulate forever.
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			rl.mu.Lock()
			if len(rl.limiters) > 10000 {
				rl.limiters = make(map[string]*rate.Limiter)
			}
			rl.mu.Unlock()
		}
	}()
}
