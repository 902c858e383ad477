package core

import (
	"context"
	"fmt"
	"sync"
)

// WorkerSpec declares one analysis worker: its identity, the tools it
// is allowed to reach, and the prompts that shape its report.
type WorkerSpec struct {
	Name   string
	Role   string
	Tools  []string
	System string
	User   func(req AnalysisRequest) string
}

const reportFormat = `Respond with a single JSON object:
{
  "signal": "BULLISH" | "BEARISH" | "NEUTRAL",
  "confidence": <0.0-1.0>,
  "summary": "<2-3 sentence summary of your analysis>",
  "key_findings": ["<short finding>", ...]
}`

// DefaultWorkers returns the standing analysis squad. Each worker sees
// only the tools its discipline needs; everything else is invisible to
// it even though one shared registry backs them all.
func DefaultWorkers() []WorkerSpec {
	return []WorkerSpec{
		{
			Name:  "chartist",
			Role:  RoleAnalysis,
			Tools: []string{"fetch_price_history"},
			System: "You are the Chartist, a technical analyst on a trading desk. " +
				"You read price action: trend structure, support and resistance, momentum, volume. " +
				"You trust the chart over narratives. " + reportFormat,
			User: func(req AnalysisRequest) string {
				return fmt.Sprintf("Analyze the price action of %s for a %s trade. "+
					"Fetch the price history you need, then give your read.%s",
					req.Ticker, req.Horizon, contextSuffix(req))
			},
		},
		{
			Name:  "quant",
			Role:  RoleAnalysis,
			Tools: []string{"fetch_price_history", "fetch_ticker_stats"},
			System: "You are the Quant, a quantitative analyst. You work from computed " +
				"indicators: RSI, MACD, ATR, moving averages, recent percent change. " +
				"You state what the numbers say and how much weight they deserve. " + reportFormat,
			User: func(req AnalysisRequest) string {
				return fmt.Sprintf("Run a quantitative read on %s for a %s trade. "+
					"Fetch price history for the indicator block and current stats, then report.%s",
					req.Ticker, req.Horizon, contextSuffix(req))
			},
		},
		{
			Name:  "scout",
			Role:  RoleAnalysis,
			Tools: []string{"fetch_ticker_news", "search_web_news"},
			System: "You are the Scout, a news and sentiment analyst. You digest headlines " +
				"and recent coverage for the ticker and the broader market, and judge whether " +
				"the news flow is a tailwind or a headwind. " + reportFormat,
			User: func(req AnalysisRequest) string {
				return fmt.Sprintf("Scan the news flow around %s for a %s trade. "+
					"Pull the ticker's headlines and search for recent coverage, then report.%s",
					req.Ticker, req.Horizon, contextSuffix(req))
			},
		},
		{
			Name:  "fundamentalist",
			Role:  RoleAnalysis,
			Tools: []string{"fetch_ticker_stats", "fetch_ticker_news"},
			System: "You are the Fundamentalist. You care about what the business is worth: " +
				"valuation relative to recent trading range, headline events that change the " +
				"earnings picture, and whether the current price is justified. " + reportFormat,
			User: func(req AnalysisRequest) string {
				return fmt.Sprintf("Assess the fundamental picture for %s on a %s horizon. "+
					"Fetch current stats and recent headlines, then report.%s",
					req.Ticker, req.Horizon, contextSuffix(req))
			},
		},
	}
}

func contextSuffix(req AnalysisRequest) string {
	if req.Context == "" {
		return ""
	}
	return "\n\nAdditional context from the requester: " + req.Context
}

// ExecutionerSpec is the synthesis step: it sees every analyst's report
// plus the weighted consensus and the portfolio position.
func ExecutionerSpec() WorkerSpec {
	return WorkerSpec{
		Name:  "executioner",
		Role:  RoleSynthesis,
		Tools: []string{"portfolio_status"},
		System: "You are the Executioner, the senior trader who makes the call. You receive " +
			"reports from the desk's analysts with a pre-computed weighted consensus. Weigh the " +
			"reports, check the current portfolio position, and produce a decision. " +
			`Respond with a single JSON object:
{
  "action": "BUY" | "SELL" | "HOLD",
  "confidence": <0.0-1.0>,
  "conclusion": "<one-sentence executive summary of the trade decision>",
  "entry": "<entry condition or price, or null>",
  "stop_loss": "<stop level, or null>",
  "take_profit": "<target, or null>"
}`,
	}
}

// RiskOfficerSpec is the validation step: it approves or vetoes the
// executioner's decision against portfolio exposure and the dissenting
// analyst views.
func RiskOfficerSpec() WorkerSpec {
	return WorkerSpec{
		Name:  "risk_officer",
		Role:  RoleValidation,
		Tools: []string{"portfolio_status"},
		System: "You are the Risk Officer. You do not generate trade ideas; you approve or veto " +
			"them. Check the proposed decision against current exposure, the strength of dissenting " +
			"analyst views, and whether the stop placement is sane. " +
			`Respond with a single JSON object:
{
  "approved": true | false,
  "confidence": <0.0-1.0>,
  "assessment": "<2-3 sentence risk assessment>",
  "concerns": ["<specific concern>", ...]
}`,
	}
}

// Conversational is a worker that can answer a free-form question from
// a sibling worker or the chat surface.
type Conversational interface {
	Name() string
	Ask(ctx context.Context, question string) (string, error)
}

// Directory maps stable worker names to their conversational handles.
// Registration happens at startup; lookups are concurrent.
type Directory struct {
	mu     sync.RWMutex
	byName map[string]Conversational
}

// NewDirectory creates an empty worker directory.
func NewDirectory() *Directory {
	return &Directory{byName: make(map[string]Conversational)}
}

// Register adds a worker. Duplicate names are an error.
func (d *Directory) Register(w Conversational) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byName[w.Name()]; exists {
		return fmt.Errorf("worker %q already registered", w.Name())
	}
	d.byName[w.Name()] = w
	return nil
}

// Ask routes a question to the named worker.
func (d *Directory) Ask(ctx context.Context, name, question string) (string, error) {
	d.mu.RLock()
	w, ok := d.byName[name]
	d.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no worker named %q", name)
	}
	return w.Ask(ctx, question)
}

// Names lists registered workers.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.byName))
	for name := range d.byName {
		out = append(out, name)
	}
	return out
}
