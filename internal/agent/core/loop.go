package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// ErrNoConvergence is returned when a worker burns its whole round
// budget requesting tools without ever producing a final answer.
var ErrNoConvergence = fmt.Errorf("worker exhausted its round budget without a final answer")

// LoopUsage accumulates provider spend across the rounds of one run.
type LoopUsage struct {
	Tokens int64
	Cost   float64
	Model  string
}

// Loop drives one worker's bounded exchange with the model provider.
// Each round either ends in a final JSON answer or in tool calls that
// are executed and folded into the next round's prompt. The final round
// withholds tools so the model has no choice but to answer.
type Loop struct {
	Provider   LLMProvider
	Tools      ToolView
	MaxRounds  int
	MaxRetries int
	Logger     *log.Logger
}

// Run executes the round loop and returns the decoded final answer.
// runCtx is the per-run context map handed to context-aware tools.
func (l *Loop) Run(ctx context.Context, system, user string, runCtx map[string]interface{}) (map[string]interface{}, *LoopUsage, error) {
	maxRounds := l.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}
	usage := &LoopUsage{}

	// Tool results accumulate across rounds so the model always sees
	// everything gathered so far, not just the latest round's calls.
	gathered := make(map[string]interface{})

	for round := 0; round <= maxRounds; round++ {
		req := ChatRequest{
			System:   system,
			User:     l.buildPrompt(user, gathered),
			JSONMode: true,
		}
		if l.Tools != nil && round < maxRounds {
			req.Tools = l.Tools.Schemas()
		}

		resp, err := generateWithRetry(ctx, l.Provider, req, l.MaxRetries)
		if err != nil {
			return nil, usage, err
		}
		usage.Tokens += resp.Tokens
		usage.Cost += resp.Cost
		if resp.Model != "" {
			usage.Model = resp.Model
		}

		if len(resp.ToolCalls) > 0 {
			// Tool calls on a round where tools were not offered can
			// never converge; do not execute them.
			if len(req.Tools) == 0 {
				return nil, usage, ErrNoConvergence
			}
			for _, call := range resp.ToolCalls {
				if l.Logger != nil {
					l.Logger.Printf("round %d: executing tool %s", round, call.Name)
				}
				// Last write wins when a tool repeats within a round.
				gathered[call.Name] = l.Tools.Execute(ctx, call.Name, call.Args, runCtx)
			}
			continue
		}

		report, err := decodeReport(resp.Text)
		if err != nil {
			return nil, usage, err
		}
		return report, usage, nil
	}
	return nil, usage, ErrNoConvergence
}

// buildPrompt appends the serialized cumulative tool results to the
// original content once any have been gathered.
func (l *Loop) buildPrompt(user string, gathered map[string]interface{}) string {
	if len(gathered) == 0 {
		return user
	}
	blob, err := json.MarshalIndent(gathered, "", "  ")
	if err != nil {
		blob = []byte(fmt.Sprintf("%v", gathered))
	}
	return user + "\n\nTool results gathered so far:\n" + string(blob) +
		"\n\nUse these results. Respond with your final JSON analysis if you have enough information."
}
