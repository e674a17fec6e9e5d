package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// unlimited is the rate used when no limit is configured. A finite value
// keeps Limit and Burst printable in logs, unlike rate.Inf.
const unlimited = 1_000_000_000

// RateLimiter throttles blob store requests with a token bucket.
//
// Tokens are added at a constant rate and each request consumes one. The
// burst is the bucket capacity: up to burst requests are served at once
// when the bucket is full.
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained requests with
// the given burst capacity.
//
// A zero rate disables limiting. A zero burst defaults to twice the rate.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = unlimited
	}
	if burst == 0 {
		burst = requestsPerSecond * 2
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Limit returns the sustained rate in requests per second.
func (r *RateLimiter) Limit() float64 {
	return float64(r.limiter.Limit())
}

// Burst returns the bucket capacity.
func (r *RateLimiter) Burst() int {
	return r.limiter.Burst()
}
