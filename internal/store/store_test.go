package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	core "github.com/tradesquad/tradesquad/internal/agent/core"
)

// Integration test; set DATABASE_URL to a Postgres with the verdicts
// schema applied to run.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := NewWithDSN(context.Background(), dsn)
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(func() { s.DB.Close() })
	return s
}

func sampleVerdict(ticker string) *core.Verdict {
	return &core.Verdict{
		ID:      uuid.New().String(),
		Ticker:  ticker,
		Horizon: core.HorizonSwing,
		Consensus: core.Consensus{
			Signal:   core.SignalBullish,
			Strength: 0.62,
			Weights:  map[core.Signal]float64{core.SignalBullish: 1.2, core.SignalBearish: 0.4, core.SignalNeutral: 0.3},
		},
		Reports: []core.Report{
			{Worker: "chartist", Signal: core.SignalBullish, Confidence: 0.8, Summary: "clean uptrend"},
		},
		Decision:   core.Report{Worker: "executioner", Signal: core.SignalBullish, Confidence: 0.75},
		Validation: core.Report{Worker: "risk_officer", Signal: core.SignalBullish, Confidence: 0.7},
		CreatedAt:  time.Now().UTC(),
		Cost:       0.042,
		TokensUsed: 12345,
	}
}

func TestSaveAndGetVerdict(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	v := sampleVerdict("AAPL")
	if err := s.SaveVerdict(ctx, v); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetVerdict(ctx, v.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Ticker != "AAPL" || got.Consensus.Signal != core.SignalBullish {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Reports) != 1 || got.Reports[0].Worker != "chartist" {
		t.Fatalf("payload lost reports: %+v", got.Reports)
	}
}

func TestListAndLatest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := sampleVerdict("MSFT")
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	second := sampleVerdict("MSFT")
	if err := s.SaveVerdict(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := s.SaveVerdict(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	rows, err := s.ListVerdicts(ctx, "MSFT", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) < 2 {
		t.Fatalf("got %d rows, want >= 2", len(rows))
	}
	if rows[0].CreatedAt.Before(rows[1].CreatedAt) {
		t.Fatal("rows not newest-first")
	}

	latest, err := s.LatestVerdict(ctx, "MSFT")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Fatalf("latest = %+v, want %s", latest, second.ID)
	}
}

func TestLatestVerdictMissing(t *testing.T) {
	s := testStore(t)
	v, err := s.LatestVerdict(context.Background(), "NO-SUCH-TICKER")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if v != nil {
		t.Fatalf("want nil for unknown ticker, got %+v", v)
	}
}
