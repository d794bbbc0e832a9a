package chain

import (
	"context"
	"errors"
	"time"

	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

// ErrAllEndpointsFailed reports that neither the primary nor any fallback
// endpoint answered the health probe.
var ErrAllEndpointsFailed = errors.New("all RPC endpoints failed health check")

// FailoverConfig tunes endpoint selection.
type FailoverConfig struct {
	// ProbeTimeout bounds each candidate's health call.
	ProbeTimeout time.Duration
}

// SelectEndpoint probes primary first, then each fallback in order, with a
// lightweight getblockcount call, and returns the first endpoint that
// responds. Any failure, rate-limit-shaped or not, moves on to the next
// candidate: availability wins over error-type discrimination here. This is
// a one-time connection-establishment decision; callers cache the result for
// the session. Per-request retry is the executor's job, not this function's.
func SelectEndpoint(ctx context.Context, log *logger.Logger, primary string, fallbacks []string, cfg FailoverConfig) (string, error) {
	if log == nil {
		log = logger.NewDefault("chain-failover")
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	candidates := append([]string{primary}, fallbacks...)
	for _, url := range candidates {
		if url == "" {
			continue
		}
		height, err := probe(ctx, url, timeout)
		if err != nil {
			log.Warn("endpoint health check failed", "url", url, "error", err)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		log.Info("endpoint selected", "url", url, "height", height)
		return url, nil
	}
	return "", ErrAllEndpointsFailed
}

func probe(ctx context.Context, url string, timeout time.Duration) (uint64, error) {
	client, err := NewClient(Config{RPCURL: url, Timeout: timeout})
	if err != nil {
		return 0, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.GetBlockCount(probeCtx)
}
