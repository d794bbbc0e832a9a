package dispatch

import "sync"

// InflightLimiter caps the number of concurrently outstanding operations.
// Unlike TokenBucket it has no time component; a released permit is
// immediately available again. It serves call sites that bound parallelism
// rather than request rate.
type InflightLimiter struct {
	mu       sync.Mutex
	inflight int
	limit    int
}

// NewInflightLimiter creates a limiter allowing up to limit concurrent
// operations. A limit below 1 is treated as 1.
func NewInflightLimiter(limit int) *InflightLimiter {
	if limit < 1 {
		limit = 1
	}
	return &InflightLimiter{limit: limit}
}

// Acquire takes a permit if one is available.
func (l *InflightLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inflight >= l.limit {
		return false
	}
	l.inflight++
	return true
}

// Release returns a previously acquired permit.
func (l *InflightLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inflight > 0 {
		l.inflight--
	}
}

// Inflight returns the number of currently held permits.
func (l *InflightLimiter) Inflight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight
}
