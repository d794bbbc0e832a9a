package dispatch

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes retry delays with exponential growth and jitter.
// Delays grow as Base * 2^retry, scaled by a random factor in [0.5, 1.0) so
// independent retriers do not synchronize against the same endpoint.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps the computed delay. Zero or negative means no cap.
	Max time.Duration
	// rand returns a value in [0, 1). Nil uses the shared math/rand source.
	rand func() float64
}

// DefaultBackoff matches the tuning used for RPC connection dispatch.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 32 * time.Second}
}

// Delay returns the backoff delay for the given retry count (0-based).
func (p Backoff) Delay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	rnd := p.rand
	if rnd == nil {
		rnd = rand.Float64
	}

	d := float64(p.Base) * math.Pow(2, float64(retry)) * (0.5 + rnd()*0.5)
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if d > float64(math.MaxInt64) {
		d = float64(math.MaxInt64)
	}
	return time.Duration(d)
}
