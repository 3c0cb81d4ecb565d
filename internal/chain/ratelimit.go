package chain

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Default per-provider request budget.
const (
	DefaultRatePerSecond = 5
	DefaultRateBurst     = 10
)

// RateLimiter throttles requests per provider base URL with one token bucket
// each. A nil *RateLimiter never blocks.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
	perSec  rate.Limit
	burst   int
}

// NewRateLimiter creates a limiter allowing ratePerSecond requests per
// provider with the given burst. A non-positive rate disables limiting.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		perSec:  limit,
		burst:   burst,
	}
}

// DefaultRateLimiter returns a limiter with 5 requests/second and a burst of 10.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(DefaultRatePerSecond, DefaultRateBurst)
}

// Allow reports whether a request to provider may proceed now.
func (r *RateLimiter) Allow(provider string) bool {
	if r == nil {
		return true
	}
	return r.bucket(provider).Allow()
}

// Wait blocks until a request to provider may proceed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, provider string) error {
	if r == nil {
		return ctx.Err()
	}
	return r.bucket(provider).Wait(ctx)
}

// Providers returns how many providers currently have a bucket.
func (r *RateLimiter) Providers() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets)
}

func (r *RateLimiter) bucket(provider string) *rate.Limiter {
	r.mu.RLock()
	b, ok := r.buckets[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	if b, ok = r.buckets[provider]; ok {
		return b
	}
	b = rate.NewLimiter(r.perSec, r.burst)
	r.buckets[provider] = b
	return b
}
