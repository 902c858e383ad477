package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tradesquad/tradesquad/config"
)

var (
	analysisRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesquad_analysis_runs_total",
		Help: "Completed analysis runs by outcome",
	}, []string{"outcome"})
	workerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesquad_worker_runs_total",
		Help: "Worker executions by worker and outcome",
	}, []string{"worker", "outcome"})
	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesquad_llm_tokens_total",
		Help: "LLM tokens consumed by model",
	}, []string{"model"})
)

// Telemetry tracks run metrics and LLM spend for the analysis squad.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
}

// Metrics holds aggregate performance numbers.
type Metrics struct {
	TotalRuns          int64
	SuccessfulRuns     int64
	FailedRuns         int64
	AverageRunTime     time.Duration
	WorkerExecutions   map[string]int64
	WorkerSuccessRates map[string]float64
	WorkerAverageTimes map[string]time.Duration
	LLMRequests        map[string]int64
	LLMTokensUsed      map[string]int64
}

// CostTracker tracks LLM spend per model and in total.
type CostTracker struct {
	ModelCosts  map[string]float64
	TotalCost   float64
	TotalTokens int64
}

// AnalysisEvent is one orchestration run.
type AnalysisEvent struct {
	ID         string
	Ticker     string
	Horizon    string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	Workers    []string
	ModelsUsed []string
}

// WorkerEvent is one worker execution within a run.
type WorkerEvent struct {
	Worker     string
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	ModelUsed  string
	Confidence float64
}

// NewTelemetry creates a telemetry instance.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			WorkerExecutions:   make(map[string]int64),
			WorkerSuccessRates: make(map[string]float64),
			WorkerAverageTimes: make(map[string]time.Duration),
			LLMRequests:        make(map[string]int64),
			LLMTokensUsed:      make(map[string]int64),
		},
		costTracker: &CostTracker{ModelCosts: make(map[string]float64)},
	}
}

// RecordAnalysisEvent records a completed orchestration run.
func (t *Telemetry) RecordAnalysisEvent(ctx context.Context, event AnalysisEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRuns++
	outcome := "success"
	if event.Success {
		t.metrics.SuccessfulRuns++
	} else {
		t.metrics.FailedRuns++
		outcome = "failure"
	}
	analysisRuns.WithLabelValues(outcome).Inc()

	if t.metrics.TotalRuns == 1 {
		t.metrics.AverageRunTime = event.Duration
	} else {
		total := t.metrics.AverageRunTime * time.Duration(t.metrics.TotalRuns-1)
		t.metrics.AverageRunTime = (total + event.Duration) / time.Duration(t.metrics.TotalRuns)
	}

	for _, model := range event.ModelsUsed {
		t.metrics.LLMRequests[model]++
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	if t.config.CostAlerts && t.config.DailyBudget > 0 && t.costTracker.TotalCost > t.config.DailyBudget {
		t.logger.Printf("COST ALERT: total spend $%.2f exceeds budget $%.2f", t.costTracker.TotalCost, t.config.DailyBudget)
	}

	t.logger.Printf("Analysis Event: ticker=%s success=%t duration=%v cost=$%.4f tokens=%d",
		event.Ticker, event.Success, event.Duration, event.Cost, event.TokensUsed)
}

// RecordWorkerEvent records a single worker execution.
func (t *Telemetry) RecordWorkerEvent(ctx context.Context, event WorkerEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.WorkerExecutions[event.Worker]++
	executions := t.metrics.WorkerExecutions[event.Worker]

	successes := t.metrics.WorkerSuccessRates[event.Worker] * float64(executions-1)
	if event.Success {
		successes += 1.0
	}
	t.metrics.WorkerSuccessRates[event.Worker] = successes / float64(executions)

	if executions == 1 {
		t.metrics.WorkerAverageTimes[event.Worker] = event.Duration
	} else {
		total := t.metrics.WorkerAverageTimes[event.Worker] * time.Duration(executions-1)
		t.metrics.WorkerAverageTimes[event.Worker] = (total + event.Duration) / time.Duration(executions)
	}

	outcome := "success"
	if !event.Success {
		outcome = "failure"
	}
	workerRuns.WithLabelValues(event.Worker, outcome).Inc()
	if event.ModelUsed != "" {
		t.metrics.LLMRequests[event.ModelUsed]++
		t.metrics.LLMTokensUsed[event.ModelUsed] += event.TokensUsed
		t.costTracker.ModelCosts[event.ModelUsed] += event.Cost
		llmTokens.WithLabelValues(event.ModelUsed).Add(float64(event.TokensUsed))
	}
	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed
}

// GetMetrics returns a copy of current aggregate metrics.
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Metrics{
		TotalRuns:          t.metrics.TotalRuns,
		SuccessfulRuns:     t.metrics.SuccessfulRuns,
		FailedRuns:         t.metrics.FailedRuns,
		AverageRunTime:     t.metrics.AverageRunTime,
		WorkerExecutions:   make(map[string]int64, len(t.metrics.WorkerExecutions)),
		WorkerSuccessRates: make(map[string]float64, len(t.metrics.WorkerSuccessRates)),
		WorkerAverageTimes: make(map[string]time.Duration, len(t.metrics.WorkerAverageTimes)),
		LLMRequests:        make(map[string]int64, len(t.metrics.LLMRequests)),
		LLMTokensUsed:      make(map[string]int64, len(t.metrics.LLMTokensUsed)),
	}
	for k, v := range t.metrics.WorkerExecutions {
		out.WorkerExecutions[k] = v
	}
	for k, v := range t.metrics.WorkerSuccessRates {
		out.WorkerSuccessRates[k] = v
	}
	for k, v := range t.metrics.WorkerAverageTimes {
		out.WorkerAverageTimes[k] = v
	}
	for k, v := range t.metrics.LLMRequests {
		out.LLMRequests[k] = v
	}
	for k, v := range t.metrics.LLMTokensUsed {
		out.LLMTokensUsed[k] = v
	}
	return out
}

// GetCostSummary returns a copy of accumulated spend.
func (t *Telemetry) GetCostSummary() CostTracker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := CostTracker{
		TotalCost:   t.costTracker.TotalCost,
		TotalTokens: t.costTracker.TotalTokens,
		ModelCosts:  make(map[string]float64, len(t.costTracker.ModelCosts)),
	}
	for k, v := range t.costTracker.ModelCosts {
		out.ModelCosts[k] = v
	}
	return out
}
