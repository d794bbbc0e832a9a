// Package chainstate maintains a periodically refreshed view of chain state
// (block height and account balances) fetched through the rate-limited
// dispatcher.
package chainstate

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/dispatch_layer/internal/chain"
	"github.com/R3E-Network/dispatch_layer/internal/dispatch"
	"github.com/R3E-Network/dispatch_layer/internal/metrics"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

// RPCClient is the chain access the refresher needs.
type RPCClient interface {
	GetBlockCount(ctx context.Context) (uint64, error)
	GetNep17Balances(ctx context.Context, address string) (*chain.Nep17Balances, error)
}

// Snapshot is one consistent view of the refreshed state.
type Snapshot struct {
	BlockHeight uint64                          `json:"block_height"`
	Balances    map[string][]chain.Nep17Balance `json:"balances"`
	UpdatedAt   time.Time                       `json:"updated_at"`
}

// Refresher periodically fetches block height and NEP-17 balances for the
// configured accounts and caches the latest snapshot. Fetches go through the
// shared dispatcher, so a slow endpoint backs pressure up here instead of
// multiplying requests.
type Refresher struct {
	client   RPCClient
	log      *logger.Logger
	interval time.Duration
	accounts []string

	// overlap guards against a new tick starting while the previous
	// refresh is still draining through the dispatch queue.
	overlap *dispatch.InflightLimiter

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	snapshot Snapshot
}

// NewRefresher creates a lifecycle-managed chain-state refresher.
func NewRefresher(client RPCClient, accounts []string, interval time.Duration, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("chainstate-refresher")
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Refresher{
		client:   client,
		log:      log,
		interval: interval,
		accounts: accounts,
		overlap:  dispatch.NewInflightLimiter(1),
	}
}

func (r *Refresher) Name() string { return "chainstate-refresher" }

// Start begins the refresh loop. The first refresh runs immediately so the
// snapshot is populated before the first tick.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.tick(runCtx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.tick(runCtx)
			}
		}
	}()

	r.log.Info("chainstate refresher started", "interval", r.interval, "accounts", len(r.accounts))
	return nil
}

// Stop halts the refresh loop and waits for any in-flight tick.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest refreshed state.
func (r *Refresher) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

func (r *Refresher) tick(ctx context.Context) {
	if !r.overlap.Acquire() {
		r.log.Warn("previous refresh still in flight, skipping tick")
		return
	}
	defer r.overlap.Release()

	start := time.Now()
	height, err := r.client.GetBlockCount(ctx)
	if err != nil {
		r.log.Warn("failed to refresh block height", "error", err)
		metrics.RecordRefreshError()
		return
	}

	balances := make(map[string][]chain.Nep17Balance, len(r.accounts))
	for _, account := range r.accounts {
		result, err := r.client.GetNep17Balances(ctx, account)
		if err != nil {
			r.log.Warn("failed to refresh balances", "account", account, "error", err)
			metrics.RecordRefreshError()
			continue
		}
		balances[account] = result.Balances
	}

	r.mu.Lock()
	r.snapshot = Snapshot{
		BlockHeight: height,
		Balances:    balances,
		UpdatedAt:   time.Now(),
	}
	r.mu.Unlock()

	metrics.ObserveRefresh(time.Since(start).Seconds())
	r.log.Debug("chain state refreshed", "height", height, "elapsed", time.Since(start))
}
