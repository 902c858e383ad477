package portfolio

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// Integration test; set REDIS_ADDR (e.g. localhost:6379) to run.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	return rdb
}

func TestSnapshotEmpty(t *testing.T) {
	repo := NewRepository(testClient(t), nil)
	snap, err := repo.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Holdings) != 0 {
		t.Fatalf("empty portfolio has holdings: %v", snap.Holdings)
	}
}

func TestWatchlistRoundTrip(t *testing.T) {
	repo := NewRepository(testClient(t), nil)
	ctx := context.Background()

	if err := repo.AddToWatchlist(ctx, "AAPL"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := repo.AddToWatchlist(ctx, "AAPL"); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	tickers, err := repo.Watchlist(ctx)
	if err != nil {
		t.Fatalf("watchlist: %v", err)
	}
	if len(tickers) != 1 || tickers[0] != "AAPL" {
		t.Fatalf("watchlist = %v", tickers)
	}
}

func TestContextWithoutPosition(t *testing.T) {
	repo := NewRepository(testClient(t), nil)
	got := repo.Context(context.Background(), "MSFT")
	if _, ok := got["cash"]; !ok {
		t.Fatalf("context missing cash: %v", got)
	}
	if _, ok := got["position"]; ok {
		t.Fatalf("flat portfolio reported a position: %v", got)
	}
}
