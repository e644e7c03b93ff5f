package server

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/Tyrowin/chatgateway/internal/config"
)

// rateLimiter is a per-connection token bucket holding Burst frames and
// refilling all of them over RefillInterval.
type rateLimiter struct {
	bucket *rate.Limiter
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	burst := max(cfg.Burst, 1)
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &rateLimiter{
		bucket: rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst),
	}
}

func (rl *rateLimiter) allow() bool {
	return rl.bucket.Allow()
}
