package chain

import (
	"errors"
	"net/http"
	"strings"

	"github.com/R3E-Network/dispatch_layer/internal/dispatch"
)

// ClassifyError translates raw transport and node errors into the dispatch
// layer's taxonomy. Rate-limit-shaped failures come back wrapped in a
// *dispatch.RateLimitError so the executor retries them; everything else is
// returned unchanged. This is the only place status-code and message
// matching happens.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return &dispatch.RateLimitError{Err: err}
		}
		return err
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if isRateLimitMessage(rpcErr.Message) {
			return &dispatch.RateLimitError{Err: err}
		}
		return err
	}

	if isRateLimitMessage(err.Error()) {
		return &dispatch.RateLimitError{Err: err}
	}
	return err
}

func isRateLimitMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}
