package core

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

var bullishMarkers = []string{"bullish", "buy", "positive", "approve"}
var bearishMarkers = []string{"bearish", "sell", "negative", "veto", "reject"}

// summaryFields are checked in order when resolving a report summary.
// conclusion is what the executioner emits, assessment the risk officer.
var summaryFields = []string{"summary", "conclusion", "assessment", "rationale", "reasoning", "analysis", "recommendation"}

// findingFields hold short key-point lists used to pad thin summaries.
var findingFields = []string{"key_findings", "findings", "key_points", "reasons"}

const minSummaryRunes = 40

// Normalize derives the canonical (signal, confidence, summary) triple
// from a worker's raw JSON report. Deterministic: the same raw map
// always yields the same normalized report.
func Normalize(worker string, raw map[string]interface{}) Report {
	return Report{
		Worker:     worker,
		Signal:     resolveSignal(raw),
		Confidence: resolveConfidence(raw),
		Summary:    resolveSummary(raw),
		Raw:        raw,
	}
}

// resolveSignal picks the directional field by priority (signal, then
// action, then outlook), descending one level into nested objects, and
// classifies it by substring. A boolean approved field overrides
// everything: the risk officer reports approval, not direction.
func resolveSignal(raw map[string]interface{}) Signal {
	if approved, ok := raw["approved"].(bool); ok {
		if approved {
			return SignalBullish
		}
		return SignalBearish
	}

	for _, field := range []string{"signal", "action", "outlook"} {
		v, ok := raw[field]
		if !ok || v == nil {
			continue
		}
		return classifySignal(signalString(v))
	}
	return SignalNeutral
}

// signalString flattens a directional value to text. Nested objects
// yield their status or action field when present.
func signalString(v interface{}) string {
	if nested, ok := v.(map[string]interface{}); ok {
		for _, field := range []string{"status", "action"} {
			if inner, ok := nested[field]; ok && inner != nil {
				return fmt.Sprintf("%v", inner)
			}
		}
	}
	return fmt.Sprintf("%v", v)
}

func classifySignal(s string) Signal {
	lower := strings.ToLower(s)
	for _, m := range bullishMarkers {
		if strings.Contains(lower, m) {
			return SignalBullish
		}
	}
	for _, m := range bearishMarkers {
		if strings.Contains(lower, m) {
			return SignalBearish
		}
	}
	return SignalNeutral
}

// resolveConfidence clamps to [0,1]; absent or non-numeric defaults to 0.5.
func resolveConfidence(raw map[string]interface{}) float64 {
	v, ok := raw["confidence"]
	if !ok {
		return 0.5
	}
	var c float64
	switch t := v.(type) {
	case float64:
		c = t
	case int:
		c = float64(t)
	default:
		return 0.5
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// resolveSummary takes the first non-empty candidate field, descending
// one level into nested objects, and pads short summaries with any key
// findings list the report carries.
func resolveSummary(raw map[string]interface{}) string {
	summary := firstText(raw, summaryFields)
	if summary == "" {
		summary = "No summary provided."
	}
	if utf8.RuneCountInString(summary) >= minSummaryRunes {
		return summary
	}
	if findings := collectFindings(raw); len(findings) > 0 {
		summary = strings.TrimSuffix(summary, ".") + ". Key findings: " + strings.Join(findings, "; ")
	}
	return summary
}

// firstText checks the candidate fields at the top level, then scans
// nested objects exactly one level down in sorted key order so the
// result stays deterministic. Deeper nesting is not searched.
func firstText(raw map[string]interface{}, fields []string) string {
	for _, field := range fields {
		if s, ok := raw[field].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		nested, ok := raw[k].(map[string]interface{})
		if !ok {
			continue
		}
		for _, field := range fields {
			if s, ok := nested[field].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func collectFindings(raw map[string]interface{}) []string {
	for _, field := range findingFields {
		items, ok := raw[field].([]interface{})
		if !ok || len(items) == 0 {
			continue
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// Consensize sums each report's confidence into its signal bucket and
// derives the winning consensus. Ties resolve BULLISH over BEARISH over
// NEUTRAL; an all-zero total is treated as 1.0 so strength stays defined.
func Consensize(reports []Report) Consensus {
	weights := map[Signal]float64{
		SignalBullish: 0,
		SignalBearish: 0,
		SignalNeutral: 0,
	}
	for _, r := range reports {
		weights[r.Signal] += r.Confidence
	}

	winner := SignalNeutral
	best := weights[SignalNeutral]
	for _, sig := range []Signal{SignalBearish, SignalBullish} {
		if weights[sig] >= best {
			winner = sig
			best = weights[sig]
		}
	}

	total := weights[SignalBullish] + weights[SignalBearish] + weights[SignalNeutral]
	if total == 0 {
		total = 1.0
	}
	return Consensus{Signal: winner, Strength: best / total, Weights: weights}
}
