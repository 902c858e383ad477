package core

import (
	"context"
	"time"

	"github.com/tradesquad/tradesquad/internal/tools"
)

// Signal is the normalized directional reading of a worker report.
type Signal string

const (
	SignalBullish Signal = "BULLISH"
	SignalBearish Signal = "BEARISH"
	SignalNeutral Signal = "NEUTRAL"
)

// Horizon is the trading timeframe an analysis targets.
type Horizon string

const (
	HorizonScalp  Horizon = "Scalp"
	HorizonSwing  Horizon = "Swing"
	HorizonInvest Horizon = "Invest"
)

// AnalysisRequest is one ticker analysis job handed to the orchestrator.
type AnalysisRequest struct {
	Ticker  string  `json:"ticker"`
	Horizon Horizon `json:"horizon"`
	Context string  `json:"context,omitempty"`
}

// Report is the normalized output of a single worker. Raw holds the
// worker's full decoded JSON object for downstream synthesis.
type Report struct {
	Worker     string                 `json:"worker"`
	Signal     Signal                 `json:"signal"`
	Confidence float64                `json:"confidence"`
	Summary    string                 `json:"summary"`
	Raw        map[string]interface{} `json:"raw,omitempty"`
	Duration   time.Duration          `json:"duration"`
	Err        string                 `json:"error,omitempty"`
}

// Consensus is the confidence-weighted aggregate over worker reports.
type Consensus struct {
	Signal   Signal             `json:"signal"`
	Strength float64            `json:"strength"`
	Weights  map[Signal]float64 `json:"weights"`
}

// Verdict is the complete result of one analysis run.
type Verdict struct {
	ID         string        `json:"id"`
	Ticker     string        `json:"ticker"`
	Horizon    Horizon       `json:"horizon"`
	Consensus  Consensus     `json:"consensus"`
	Reports    []Report      `json:"reports"`
	Decision   Report        `json:"decision"`
	Validation Report        `json:"validation"`
	CreatedAt  time.Time     `json:"created_at"`
	Duration   time.Duration `json:"duration"`
	Cost       float64       `json:"cost"`
	TokensUsed int64         `json:"tokens_used"`
}

// ToolCall is a model's request to invoke a named tool.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ToolResult pairs a tool call with the value it produced.
type ToolResult struct {
	Call   ToolCall
	Result interface{}
}

// ChatRequest is a single model invocation.
type ChatRequest struct {
	System   string
	User     string
	JSONMode bool
	Tools    []tools.Schema
}

// ChatResponse is what came back: either final text or tool calls to
// satisfy before the model can answer.
type ChatResponse struct {
	Text      string
	ToolCalls []ToolCall
	Model     string
	Tokens    int64
	Cost      float64
}

// LLMProvider abstracts a chat-completion backend.
type LLMProvider interface {
	Generate(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// ToolView is the tool surface a worker sees: its allow-listed schemas
// plus execution that delegates to the shared registry.
type ToolView interface {
	Schemas() []tools.Schema
	Execute(ctx context.Context, name string, args map[string]interface{}, runCtx map[string]interface{}) interface{}
}

// Gatherer pre-fetches the shared market data package handed to every
// worker before dispatch.
type Gatherer interface {
	Gather(ctx context.Context, ticker, horizon string) map[string]interface{}
}
