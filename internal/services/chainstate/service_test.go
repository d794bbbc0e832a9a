package chainstate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/R3E-Network/dispatch_layer/internal/chain"
)

type fakeClient struct {
	mu       sync.Mutex
	height   uint64
	balances map[string][]chain.Nep17Balance
	failNext bool
	calls    int
}

func (f *fakeClient) GetBlockCount(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext {
		f.failNext = false
		return 0, fmt.Errorf("endpoint down")
	}
	return f.height, nil
}

func (f *fakeClient) GetNep17Balances(ctx context.Context, address string) (*chain.Nep17Balances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &chain.Nep17Balances{Address: address, Balances: f.balances[address]}, nil
}

func TestRefresher_PopulatesSnapshotOnStart(t *testing.T) {
	client := &fakeClient{
		height: 5000,
		balances: map[string][]chain.Nep17Balance{
			"NVbG": {{Symbol: "GAS", Amount: "1234"}},
		},
	}
	r := NewRefresher(client, []string{"NVbG"}, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop(context.Background())

	snap := waitForSnapshot(t, r)
	if snap.BlockHeight != 5000 {
		t.Fatalf("height = %d, want 5000", snap.BlockHeight)
	}
	got, ok := snap.Balances["NVbG"]
	if !ok || len(got) != 1 || got[0].Symbol != "GAS" {
		t.Fatalf("balances = %+v", snap.Balances)
	}
}

func TestRefresher_FailedRefreshKeepsLastSnapshot(t *testing.T) {
	client := &fakeClient{height: 100}
	r := NewRefresher(client, nil, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop(context.Background())

	first := waitForSnapshot(t, r)

	client.mu.Lock()
	client.failNext = true
	client.mu.Unlock()
	r.tick(ctx)

	if got := r.Snapshot(); got.BlockHeight != first.BlockHeight || !got.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("failed tick must not overwrite snapshot: %+v vs %+v", got, first)
	}
}

func TestRefresher_StartIsIdempotent(t *testing.T) {
	client := &fakeClient{height: 1}
	r := NewRefresher(client, nil, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestRefresher_StopWithoutStart(t *testing.T) {
	r := NewRefresher(&fakeClient{}, nil, time.Hour, nil)
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func waitForSnapshot(t *testing.T, r *Refresher) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := r.Snapshot(); !snap.UpdatedAt.IsZero() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("snapshot never populated")
	return Snapshot{}
}
