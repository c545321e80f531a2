package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket in front of the generation service.
// All variant goroutines of an entry share it, so a three-variant batch
// still respects the service-wide calls-per-second ceiling.
// Burst equals the rate so no extra burst capacity is allowed beyond
// the configured per-second maximum.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter granting ratePerSec tokens per second.
func New(ratePerSec int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

// Wait blocks until a token is granted. Called immediately before each
// generation call. Returns a non-nil error only if ctx is cancelled
// while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
