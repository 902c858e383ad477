package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tradesquad/tradesquad/config"
	"github.com/tradesquad/tradesquad/internal/agent/telemetry"
	"github.com/tradesquad/tradesquad/internal/tools"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var orchestratorTracer trace.Tracer = otel.Tracer("tradesquad/internal/agent/orchestrator")

// Orchestrator coordinates the analysis squad: it fans the analyst
// workers out under a concurrency gate, folds their reports into a
// weighted consensus, and runs the synthesis and validation steps.
type Orchestrator struct {
	config    *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry
	router    *Router
	registry  *tools.Registry
	gatherer  Gatherer
	directory *Directory

	workers     []WorkerSpec
	executioner WorkerSpec
	riskOfficer WorkerSpec

	// Concurrency control
	semaphore chan struct{}
}

// NewOrchestrator creates an orchestrator with the standing squad. A
// nil gatherer skips the pre-dispatch data fetch; workers then pull
// everything through their tools.
func NewOrchestrator(cfg *config.Config, logger *log.Logger, tel *telemetry.Telemetry, router *Router, registry *tools.Registry, gatherer Gatherer) (*Orchestrator, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	limit := cfg.Workers.MaxConcurrent
	if limit <= 0 {
		limit = 5
	}

	o := &Orchestrator{
		config:      cfg,
		logger:      logger,
		telemetry:   tel,
		router:      router,
		registry:    registry,
		gatherer:    gatherer,
		directory:   NewDirectory(),
		workers:     DefaultWorkers(),
		executioner: ExecutionerSpec(),
		riskOfficer: RiskOfficerSpec(),
		semaphore:   make(chan struct{}, limit),
	}

	for _, spec := range o.workers {
		if err := o.directory.Register(&workerHandle{spec: spec, orch: o}); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Directory exposes the conversational worker registry.
func (o *Orchestrator) Directory() *Directory { return o.directory }

// Analyze runs the full pipeline for one ticker: analysts in parallel,
// consensus, executioner decision, risk officer validation.
func (o *Orchestrator) Analyze(ctx context.Context, req AnalysisRequest) (*Verdict, error) {
	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.analyze",
		trace.WithAttributes(
			attribute.String("ticker", req.Ticker),
			attribute.String("horizon", string(req.Horizon)),
		))
	defer span.End()

	if req.Ticker == "" {
		err := fmt.Errorf("analysis request has no ticker")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if req.Horizon == "" {
		req.Horizon = Horizon(o.config.General.DefaultHorizon)
	}

	start := time.Now()
	id := uuid.New().String()
	o.logger.Printf("starting analysis %s: ticker=%s horizon=%s", id, req.Ticker, req.Horizon)

	runCtx := map[string]interface{}{
		"ticker":  req.Ticker,
		"horizon": string(req.Horizon),
	}
	if o.gatherer != nil {
		gatherCtx, gatherSpan := orchestratorTracer.Start(ctx, "orchestrator.gather")
		runCtx["data"] = o.gatherer.Gather(gatherCtx, req.Ticker, string(req.Horizon))
		gatherSpan.End()
		o.logger.Printf("analysis %s: market data package gathered", id)
	}

	reports, usage := o.dispatch(ctx, o.workers, req, runCtx)
	consensus := Consensize(reports)
	o.logger.Printf("analysis %s consensus: %s (strength %.2f)", id, consensus.Signal, consensus.Strength)

	decision, decUsage := o.synthesize(ctx, req, reports, consensus, runCtx)
	validation, valUsage := o.validate(ctx, req, decision, reports, runCtx)

	verdict := &Verdict{
		ID:         id,
		Ticker:     req.Ticker,
		Horizon:    req.Horizon,
		Consensus:  consensus,
		Reports:    reports,
		Decision:   decision,
		Validation: validation,
		CreatedAt:  start,
		Duration:   time.Since(start),
		Cost:       usage.Cost + decUsage.Cost + valUsage.Cost,
		TokensUsed: usage.Tokens + decUsage.Tokens + valUsage.Tokens,
	}

	if o.telemetry != nil {
		names := make([]string, 0, len(o.workers))
		for _, w := range o.workers {
			names = append(names, w.Name)
		}
		o.telemetry.RecordAnalysisEvent(ctx, telemetry.AnalysisEvent{
			ID:         id,
			Ticker:     req.Ticker,
			Horizon:    string(req.Horizon),
			StartTime:  start,
			EndTime:    time.Now(),
			Duration:   verdict.Duration,
			Success:    true,
			Cost:       verdict.Cost,
			TokensUsed: verdict.TokensUsed,
			Workers:    names,
		})
	}
	span.SetAttributes(
		attribute.String("consensus.signal", string(consensus.Signal)),
		attribute.Float64("consensus.strength", consensus.Strength),
	)
	return verdict, nil
}

// dispatch fans the workers out under the semaphore. Every worker
// produces exactly one report in submission order; failures become
// NEUTRAL error entries instead of aborting siblings.
func (o *Orchestrator) dispatch(ctx context.Context, specs []WorkerSpec, req AnalysisRequest, runCtx map[string]interface{}) ([]Report, LoopUsage) {
	reports := make([]Report, len(specs))
	usages := make([]LoopUsage, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec WorkerSpec) {
			defer wg.Done()

			select {
			case o.semaphore <- struct{}{}:
				defer func() { <-o.semaphore }()
			case <-ctx.Done():
				reports[i] = errorReport(spec.Name, ctx.Err())
				return
			}

			reports[i], usages[i] = o.runWorker(ctx, spec, req, runCtx)
		}(i, spec)
	}
	wg.Wait()

	var total LoopUsage
	for _, u := range usages {
		total.Tokens += u.Tokens
		total.Cost += u.Cost
	}
	return reports, total
}

// runWorker executes one worker's loop end to end and normalizes its
// output. Panics and errors are contained here so one bad worker never
// takes the run down.
func (o *Orchestrator) runWorker(ctx context.Context, spec WorkerSpec, req AnalysisRequest, runCtx map[string]interface{}) (report Report, usage LoopUsage) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("worker %s panicked: %v", spec.Name, r)
			report = errorReport(spec.Name, fmt.Errorf("worker panic: %v", r))
		}
		report.Duration = time.Since(start)
		if o.telemetry != nil {
			o.telemetry.RecordWorkerEvent(ctx, telemetry.WorkerEvent{
				Worker:     spec.Name,
				Duration:   report.Duration,
				Success:    report.Err == "",
				Error:      report.Err,
				Cost:       usage.Cost,
				TokensUsed: usage.Tokens,
				ModelUsed:  usage.Model,
				Confidence: report.Confidence,
			})
		}
	}()

	if o.config.Workers.WorkerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Workers.WorkerTimeout)
		defer cancel()
	}

	loop := &Loop{
		Provider:   o.router.For(spec.Role),
		Tools:      o.registry.View(spec.Tools...),
		MaxRounds:  o.config.Workers.MaxToolRounds,
		MaxRetries: o.config.Workers.MaxRetries,
		Logger:     o.logger,
	}

	raw, u, err := loop.Run(ctx, spec.System, withDataPackage(spec.User(req), runCtx), runCtx)
	if err != nil {
		o.logger.Printf("worker %s failed: %v", spec.Name, err)
		return errorReport(spec.Name, err), *u
	}
	return Normalize(spec.Name, raw), *u
}

// withDataPackage appends the pre-gathered market data to a worker's
// prompt so tool rounds are only spent on what the package lacks.
func withDataPackage(user string, runCtx map[string]interface{}) string {
	data, ok := runCtx["data"].(map[string]interface{})
	if !ok || len(data) == 0 {
		return user
	}
	blob, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return user
	}
	return user + "\n\nPre-gathered market data:\n" + string(blob) +
		"\n\nUse your tools only for anything this package does not cover."
}

// errorReport is the isolated form of a failed worker: neutral signal,
// zero confidence, error text attached.
func errorReport(worker string, err error) Report {
	return Report{
		Worker:     worker,
		Signal:     SignalNeutral,
		Confidence: 0,
		Summary:    fmt.Sprintf("Worker failed: %v", err),
		Err:        err.Error(),
	}
}

// synthesize runs the executioner over the analyst reports and the
// pre-computed consensus.
func (o *Orchestrator) synthesize(ctx context.Context, req AnalysisRequest, reports []Report, consensus Consensus, runCtx map[string]interface{}) (Report, LoopUsage) {
	total := consensus.Weights[SignalBullish] + consensus.Weights[SignalBearish] + consensus.Weights[SignalNeutral]
	if total == 0 {
		total = 1.0
	}

	user := fmt.Sprintf("Ticker: %s\nHorizon: %s\n\nAnalyst reports:\n", req.Ticker, req.Horizon)
	for _, r := range reports {
		user += fmt.Sprintf("- %s: %s (confidence %.2f) — %s\n", r.Worker, r.Signal, r.Confidence, r.Summary)
	}
	user += fmt.Sprintf("\nWeighted consensus: %s (bull=%.0f%% bear=%.0f%% neutral=%.0f%%, strength %.2f)\n",
		consensus.Signal,
		consensus.Weights[SignalBullish]/total*100,
		consensus.Weights[SignalBearish]/total*100,
		consensus.Weights[SignalNeutral]/total*100,
		consensus.Strength)
	user += "\nCheck the portfolio position, then make the call."

	spec := o.executioner
	loop := &Loop{
		Provider:   o.router.For(spec.Role),
		Tools:      o.registry.View(spec.Tools...),
		MaxRounds:  o.config.Workers.MaxToolRounds,
		MaxRetries: o.config.Workers.MaxRetries,
		Logger:     o.logger,
	}
	raw, usage, err := loop.Run(ctx, spec.System, user, runCtx)
	if err != nil {
		o.logger.Printf("executioner failed: %v", err)
		return errorReport(spec.Name, err), *usage
	}
	return Normalize(spec.Name, raw), *usage
}

// validate runs the risk officer over the executioner's decision.
func (o *Orchestrator) validate(ctx context.Context, req AnalysisRequest, decision Report, reports []Report, runCtx map[string]interface{}) (Report, LoopUsage) {
	decisionJSON, err := json.MarshalIndent(decision.Raw, "", "  ")
	if err != nil || decision.Raw == nil {
		decisionJSON = []byte(fmt.Sprintf("%s (confidence %.2f): %s", decision.Signal, decision.Confidence, decision.Summary))
	}

	user := fmt.Sprintf("Ticker: %s\nHorizon: %s\n\nProposed decision:\n%s\n\nAnalyst dissent:\n",
		req.Ticker, req.Horizon, decisionJSON)
	for _, r := range reports {
		if r.Signal != decision.Signal {
			user += fmt.Sprintf("- %s: %s (confidence %.2f) — %s\n", r.Worker, r.Signal, r.Confidence, r.Summary)
		}
	}
	user += "\nCheck current exposure, then approve or veto."

	spec := o.riskOfficer
	loop := &Loop{
		Provider:   o.router.For(spec.Role),
		Tools:      o.registry.View(spec.Tools...),
		MaxRounds:  o.config.Workers.MaxToolRounds,
		MaxRetries: o.config.Workers.MaxRetries,
		Logger:     o.logger,
	}
	raw, usage, err := loop.Run(ctx, spec.System, user, runCtx)
	if err != nil {
		o.logger.Printf("risk officer failed: %v", err)
		return errorReport(spec.Name, err), *usage
	}
	return Normalize(spec.Name, raw), *usage
}

// workerHandle adapts a WorkerSpec to the conversational interface so
// siblings and the chat surface can question it directly, without the
// full round loop.
type workerHandle struct {
	spec WorkerSpec
	orch *Orchestrator
}

func (h *workerHandle) Name() string { return h.spec.Name }

func (h *workerHandle) Ask(ctx context.Context, question string) (string, error) {
	resp, err := generateWithRetry(ctx, h.orch.router.For(RoleChat), ChatRequest{
		System: h.spec.System + "\n\nA colleague is asking you a direct question. Answer in plain prose, not JSON.",
		User:   question,
	}, h.orch.config.Workers.MaxRetries)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
