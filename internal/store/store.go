package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	core "github.com/tradesquad/tradesquad/internal/agent/core"
)

// Store persists analysis verdicts in Postgres.
type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// VerdictRow is one persisted analysis run.
type VerdictRow struct {
	ID        string    `json:"id"`
	Ticker    string    `json:"ticker"`
	Horizon   string    `json:"horizon"`
	Signal    string    `json:"signal"`
	Strength  float64   `json:"strength"`
	Decision  string    `json:"decision"`
	Approved  bool      `json:"approved"`
	Cost      float64   `json:"cost"`
	Tokens    int64     `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
	Payload   []byte    `json:"-"`
}

// SaveVerdict writes a completed verdict, full payload included.
func (s *Store) SaveVerdict(ctx context.Context, v *core.Verdict) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO verdicts (id, ticker, horizon, signal, strength, decision, approved, cost, tokens, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		v.ID, v.Ticker, string(v.Horizon), string(v.Consensus.Signal), v.Consensus.Strength,
		string(v.Decision.Signal), v.Validation.Signal == core.SignalBullish,
		v.Cost, v.TokensUsed, payload, v.CreatedAt)
	return err
}

// GetVerdict loads one verdict by id, with its full payload.
func (s *Store) GetVerdict(ctx context.Context, id string) (*core.Verdict, error) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx, `SELECT payload FROM verdicts WHERE id=$1`, id).Scan(&payload)
	if err != nil {
		return nil, err
	}
	var v core.Verdict
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("unmarshal verdict %s: %w", id, err)
	}
	return &v, nil
}

// ListVerdicts returns recent verdict summaries, optionally filtered by
// ticker, newest first.
func (s *Store) ListVerdicts(ctx context.Context, ticker string, limit int) ([]VerdictRow, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, ticker, horizon, signal, strength, decision, approved, cost, tokens, created_at
		FROM verdicts`
	args := []interface{}{}
	if ticker != "" {
		query += ` WHERE ticker=$1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, ticker, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VerdictRow
	for rows.Next() {
		var r VerdictRow
		if err := rows.Scan(&r.ID, &r.Ticker, &r.Horizon, &r.Signal, &r.Strength, &r.Decision, &r.Approved, &r.Cost, &r.Tokens, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestVerdict returns the most recent verdict for a ticker, or nil
// when none exists.
func (s *Store) LatestVerdict(ctx context.Context, ticker string) (*core.Verdict, error) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT payload FROM verdicts WHERE ticker=$1 ORDER BY created_at DESC LIMIT 1`, ticker).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v core.Verdict
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// TotalSpend sums LLM cost over verdicts created since the cutoff.
func (s *Store) TotalSpend(ctx context.Context, since time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.DB.QueryRowContext(ctx,
		`SELECT SUM(cost) FROM verdicts WHERE created_at >= $1`, since).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}
