package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tradesquad/tradesquad/config"
)

const (
	snapshotKey  = "paper:portfolio"
	watchlistKey = "paper:watchlist"
)

// Conn opens and pings a Redis connection.
func Conn(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		DialTimeout: timeout,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Snapshot is the read-only paper trading state the execution engine
// maintains. The analysis core consumes it and never writes it back.
type Snapshot struct {
	Cash     float64                           `json:"cash"`
	Holdings map[string]map[string]interface{} `json:"holdings"`
}

// Repository reads portfolio state maintained by the external paper
// trading engine.
type Repository struct {
	rdb    *redis.Client
	logger *log.Logger
}

// NewRepository wraps a Redis client.
func NewRepository(rdb *redis.Client, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.New(log.Writer(), "[PORTFOLIO] ", log.LstdFlags)
	}
	return &Repository{rdb: rdb, logger: logger}
}

// Snapshot loads the current paper portfolio. A missing key is an empty
// portfolio, not an error.
func (r *Repository) Snapshot(ctx context.Context) (Snapshot, error) {
	if r == nil || r.rdb == nil {
		return Snapshot{Holdings: map[string]map[string]interface{}{}}, nil
	}
	raw, err := r.rdb.Get(ctx, snapshotKey).Result()
	if err == redis.Nil {
		return Snapshot{Holdings: map[string]map[string]interface{}{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("portfolio snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("portfolio snapshot decode: %w", err)
	}
	if snap.Holdings == nil {
		snap.Holdings = map[string]map[string]interface{}{}
	}
	return snap, nil
}

// Context builds the {position?, cash} map handed to workers and
// context-accepting tools for one ticker.
func (r *Repository) Context(ctx context.Context, ticker string) map[string]interface{} {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		r.logger.Printf("portfolio unavailable: %v", err)
		return map[string]interface{}{"cash": 0.0}
	}
	out := map[string]interface{}{"cash": snap.Cash}
	if pos, ok := snap.Holdings[ticker]; ok {
		out["position"] = pos
	}
	return out
}

// Watchlist returns the tickers the scheduler re-analyzes periodically.
func (r *Repository) Watchlist(ctx context.Context) ([]string, error) {
	if r == nil || r.rdb == nil {
		return nil, nil
	}
	return r.rdb.SMembers(ctx, watchlistKey).Result()
}

// AddToWatchlist registers a ticker for scheduled re-analysis.
func (r *Repository) AddToWatchlist(ctx context.Context, ticker string) error {
	if r == nil || r.rdb == nil {
		return fmt.Errorf("redis not configured")
	}
	return r.rdb.SAdd(ctx, watchlistKey, ticker).Err()
}

// Client exposes the underlying Redis client for scheduler locking.
func (r *Repository) Client() *redis.Client {
	if r == nil {
		return nil
	}
	return r.rdb
}
