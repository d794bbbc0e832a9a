package dispatch

import "errors"

// Common errors
var (
	ErrQueueFull          = errors.New("dispatch queue is full")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrShutdown           = errors.New("dispatcher shut down")
	ErrExecutorClosed     = errors.New("executor is closed")
)

// RateLimitError marks a failure as rate-limit-class. The executor retries
// these with backoff; every other error propagates on first occurrence.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return "rate limited"
	}
	return "rate limited: " + e.Err.Error()
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err or anything it wraps is rate-limit-class.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
