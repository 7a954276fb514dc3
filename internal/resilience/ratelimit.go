package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig parameterizes the token bucket: RequestsPerMinute is the
// steady-state refill rate, BurstCapacity is the bucket's max size, and
// Enabled toggles the limiter off entirely (Wait becomes a no-op).
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstCapacity     int
	Enabled           bool
}

// RateLimiter wraps golang.org/x/time/rate.Limiter: a token bucket with a
// steady-state refill rate and burst headroom.
type RateLimiter struct {
	limiter *rate.Limiter
	enabled bool
}

// NewRateLimiter constructs a limiter starting with a full bucket.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	return &RateLimiter{
		limiter: rate.NewLimiter(perSecond, cfg.BurstCapacity),
		enabled: cfg.Enabled,
	}
}

// Wait blocks until a token is available or ctx is cancelled. A disabled
// limiter returns immediately.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if !r.enabled {
		return nil
	}
	return r.limiter.Wait(ctx)
}
