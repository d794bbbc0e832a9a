package chain

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/R3E-Network/dispatch_layer/internal/dispatch"
	"github.com/R3E-Network/dispatch_layer/internal/metrics"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

func failureKind(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrMaxRetriesExceeded):
		return "retries_exhausted"
	case errors.Is(err, dispatch.ErrShutdown):
		return "shutdown"
	default:
		return "operation"
	}
}

// DispatchingClient routes every RPC call through a single rate-limited
// executor so that one endpoint identity is never hit concurrently or beyond
// its observed rate. All higher-level call sites (refreshers, fetchers,
// status handlers) share one instance instead of carrying their own retry
// loops.
type DispatchingClient struct {
	client *Client
	exec   *dispatch.Executor[json.RawMessage]
	log    *logger.Logger
}

// NewDispatchingClient wraps client with an executor built from cfg.
func NewDispatchingClient(client *Client, cfg dispatch.Config, log *logger.Logger) *DispatchingClient {
	if log == nil {
		log = logger.NewDefault("chain-dispatch")
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = dispatch.IsRateLimited
	}
	endpoint := client.URL()
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(retry int, err error) {
			metrics.RecordRetry(endpoint)
		}
	}
	if cfg.OnFailure == nil {
		cfg.OnFailure = func(err error) {
			metrics.RecordFailure(endpoint, failureKind(err))
		}
	}
	return &DispatchingClient{
		client: client,
		exec:   dispatch.NewExecutor[json.RawMessage](cfg, log),
		log:    log,
	}
}

// URL returns the endpoint this client talks to.
func (d *DispatchingClient) URL() string { return d.client.URL() }

// QueueLen reports pending dispatches for monitoring.
func (d *DispatchingClient) QueueLen() int { return d.exec.QueueLen() }

// Tokens reports available permits for monitoring.
func (d *DispatchingClient) Tokens() float64 { return d.exec.Tokens() }

// RefillRate reports the current adaptive refill rate.
func (d *DispatchingClient) RefillRate() float64 { return d.exec.RefillRate() }

// Close drains the executor, rejecting anything still queued.
func (d *DispatchingClient) Close() { d.exec.Close() }

// Call submits method through the dispatch queue and waits for the result.
// Raw transport errors are classified at this boundary; the executor only
// ever sees the structured taxonomy.
func (d *DispatchingClient) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	requestID := uuid.New().String()

	op := dispatch.OperationFunc[json.RawMessage](func(opCtx context.Context) (json.RawMessage, error) {
		result, err := d.client.Call(opCtx, method, params)
		if err != nil {
			return nil, ClassifyError(err)
		}
		return result, nil
	})

	d.log.Debug("rpc call queued", "id", requestID, "method", method, "queue_len", d.exec.QueueLen())
	result, err := d.exec.Do(ctx, op)
	if err != nil {
		d.log.Debug("rpc call failed", "id", requestID, "method", method, "error", err)
		return nil, err
	}
	return result, nil
}

// GetBlockCount returns the current block height via the dispatch queue.
func (d *DispatchingClient) GetBlockCount(ctx context.Context) (uint64, error) {
	result, err := d.Call(ctx, "getblockcount", nil)
	if err != nil {
		return 0, err
	}

	var count uint64
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetNep17Balances returns NEP-17 balances via the dispatch queue.
func (d *DispatchingClient) GetNep17Balances(ctx context.Context, address string) (*Nep17Balances, error) {
	result, err := d.Call(ctx, "getnep17balances", []any{address})
	if err != nil {
		return nil, err
	}

	var balances Nep17Balances
	if err := json.Unmarshal(result, &balances); err != nil {
		return nil, err
	}
	return &balances, nil
}
