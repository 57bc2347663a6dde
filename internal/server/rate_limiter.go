// Package server builds per-session token bucket limiters that protect the
// chat room from flooding.
package server

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// newRateLimiter returns a limiter allowing capacity lines per interval with
// bursts of up to capacity. A non-positive capacity means no limit.
func newRateLimiter(capacity int, interval time.Duration) *rate.Limiter {
	if capacity <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if interval <= 0 {
		interval = time.Second
	}

	limit := rate.Limit(float64(capacity) / interval.Seconds())
	return rate.NewLimiter(limit, capacity)
}

// limiterFactory adapts the rate limit settings to the chat handler.
func limiterFactory(cfg RateLimitConfig) func() chat.Limiter {
	if cfg.Burst <= 0 {
		return nil
	}
	return func() chat.Limiter {
		return newRateLimiter(cfg.Burst, cfg.RefillInterval)
	}
}
