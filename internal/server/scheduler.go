package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
	appconfig "github.com/tradesquad/tradesquad/config"
	"github.com/tradesquad/tradesquad/internal/agent/core"
	"github.com/tradesquad/tradesquad/internal/portfolio"
	"github.com/tradesquad/tradesquad/internal/store"
)

// Scheduler periodically re-analyzes every watchlist ticker. A redis
// lock per ticker keeps multiple replicas from running the same
// analysis at once.
type Scheduler struct {
	Config appconfig.SchedulerConfig
	Folio  *portfolio.Repository
	Store  *store.Store
	Rdb    *redis.Client
	Orch   *core.Orchestrator
	Stop   chan struct{}
	Logger *log.Logger
}

func (s *Scheduler) Start() {
	interval := s.Config.TickInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	tickers, err := s.Folio.Watchlist(ctx)
	if err != nil {
		s.Logger.Printf("watchlist: %v", err)
		return
	}

	for _, ticker := range tickers {
		var last *time.Time
		if v, err := s.Store.LatestVerdict(ctx, ticker); err == nil && v != nil {
			last = &v.CreatedAt
		}
		if !isDue(s.Config.DefaultCron, last) {
			continue
		}

		if s.Rdb != nil {
			lockKey := "sched:lock:" + ticker
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 5*time.Minute).Result()
			if !ok {
				continue
			}
		}

		go func(ticker string) {
			// jitter to avoid stampedes
			time.Sleep(time.Duration(250+int64(time.Now().UnixNano()%250)) * time.Millisecond)
			verdict, err := s.Orch.Analyze(ctx, core.AnalysisRequest{Ticker: ticker})
			if err != nil {
				s.Logger.Printf("scheduled analysis of %s failed: %v", ticker, err)
				return
			}
			if err := s.Store.SaveVerdict(ctx, verdict); err != nil {
				s.Logger.Printf("save verdict for %s: %v", ticker, err)
			}
		}(ticker)
	}
}

// isDue determines whether a ticker with cronSpec should run now given
// its last analysis time. Supports "@daily", "@hourly", and standard
// 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
