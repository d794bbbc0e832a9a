package dispatch

import (
	"sync"
	"time"
)

// BucketConfig configures an adaptive token bucket.
type BucketConfig struct {
	// Capacity is the maximum burst size in permits.
	Capacity float64
	// RefillRate is the starting refill rate in permits per second.
	RefillRate float64
	// MinRefillRate is the floor the rate decays toward under failures.
	MinRefillRate float64
	// MaxRefillRate is the ceiling the rate recovers toward under successes.
	MaxRefillRate float64
}

// DefaultBucketConfig returns the tuning used for public RPC endpoints.
func DefaultBucketConfig() BucketConfig {
	return BucketConfig{
		Capacity:      10,
		RefillRate:    5,
		MinRefillRate: 0.5,
		MaxRefillRate: 20,
	}
}

func (c BucketConfig) normalized() BucketConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.MinRefillRate <= 0 {
		c.MinRefillRate = 0.1
	}
	if c.MaxRefillRate < c.MinRefillRate {
		c.MaxRefillRate = c.MinRefillRate
	}
	if c.RefillRate < c.MinRefillRate {
		c.RefillRate = c.MinRefillRate
	}
	if c.RefillRate > c.MaxRefillRate {
		c.RefillRate = c.MaxRefillRate
	}
	return c
}

// TokenBucket is a token bucket whose refill rate adapts to observed endpoint
// behavior: rate-limit failures halve the rate exponentially and drain the
// bucket, successes recover it gradually.
type TokenBucket struct {
	mu                  sync.Mutex
	tokens              float64
	capacity            float64
	refillRate          float64
	minRate             float64
	maxRate             float64
	lastRefill          time.Time
	consecutiveFailures int
	now                 func() time.Time
}

// NewTokenBucket creates a bucket that starts full. The now func may be nil,
// in which case time.Now is used.
func NewTokenBucket(cfg BucketConfig, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	cfg = cfg.normalized()
	return &TokenBucket{
		tokens:     cfg.Capacity,
		capacity:   cfg.Capacity,
		refillRate: cfg.RefillRate,
		minRate:    cfg.MinRefillRate,
		maxRate:    cfg.MaxRefillRate,
		lastRefill: now(),
		now:        now,
	}
}

// AcquirePermit consumes one permit if available. It never blocks; callers
// that get false must wait for refill and try again.
func (b *TokenBucket) AcquirePermit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// HandleSuccess records a successful call. The refill rate recovers by 20%
// per success so one good response after a failure streak does not snap the
// rate back to maximum.
func (b *TokenBucket) HandleSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.refillRate *= 1.2
	if b.refillRate > b.maxRate {
		b.refillRate = b.maxRate
	}
}

// HandleFailure records a rate-limit failure. Each failure in a streak
// halves the rate, so after n consecutive failures the rate sits at 0.5^n of
// where the streak started. The bucket is also drained so an already-accrued
// permit cannot slip through right after a 429.
func (b *TokenBucket) HandleFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.refillRate *= 0.5
	if b.refillRate < b.minRate {
		b.refillRate = b.minRate
	}
	b.tokens = 0
}

// ConsecutiveFailures returns the current rate-limit failure streak.
func (b *TokenBucket) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// Tokens returns the currently available permits after refill.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// Rate returns the current refill rate in permits per second.
func (b *TokenBucket) Rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refillRate
}

// waitForPermit returns how long the caller should wait before the next
// AcquirePermit attempt, based on the current token deficit.
func (b *TokenBucket) waitForPermit() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= 1 {
		return 0
	}
	deficit := 1 - b.tokens
	return time.Duration(deficit / b.refillRate * float64(time.Second))
}

// refill adds tokens based on elapsed time (must be called with lock held).
func (b *TokenBucket) refill() {
	now := b.now()
	if now.Before(b.lastRefill) {
		b.lastRefill = now
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}
