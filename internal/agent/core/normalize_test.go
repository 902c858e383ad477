package core

import (
	"math"
	"strings"
	"testing"
)

func TestNormalizeSignalClassification(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]interface{}
		sig  Signal
		conf float64
	}{
		{"buy clamps high confidence", map[string]interface{}{"signal": "BUY", "confidence": 1.2}, SignalBullish, 1.0},
		{"approved false overrides", map[string]interface{}{"approved": false}, SignalBearish, 0.5},
		{"neutralish text", map[string]interface{}{"outlook": "neutral-ish text"}, SignalNeutral, 0.5},
		{"approved true overrides signal", map[string]interface{}{"approved": true, "signal": "SELL"}, SignalBullish, 0.5},
		{"action over outlook", map[string]interface{}{"action": "sell into strength", "outlook": "bullish"}, SignalBearish, 0.5},
		{"nested status", map[string]interface{}{"signal": map[string]interface{}{"status": "veto"}}, SignalBearish, 0.5},
		{"negative confidence clamps", map[string]interface{}{"signal": "positive", "confidence": -0.3}, SignalBullish, 0.0},
		{"empty report", map[string]interface{}{}, SignalNeutral, 0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize("w", tc.raw)
			if got.Signal != tc.sig {
				t.Fatalf("signal = %s, want %s", got.Signal, tc.sig)
			}
			if got.Confidence != tc.conf {
				t.Fatalf("confidence = %v, want %v", got.Confidence, tc.conf)
			}
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	raw := map[string]interface{}{"signal": "bullish breakout", "confidence": 0.7, "summary": "strong trend with rising volume over the last ten sessions"}
	a := Normalize("w", raw)
	b := Normalize("w", raw)
	if a.Signal != b.Signal || a.Confidence != b.Confidence || a.Summary != b.Summary {
		t.Fatalf("normalization not deterministic: %+v vs %+v", a, b)
	}
}

func TestSummaryPriorityAndNesting(t *testing.T) {
	raw := map[string]interface{}{
		"decision": map[string]interface{}{
			"conclusion": "Take the long: momentum and news flow both confirm the breakout.",
		},
	}
	got := Normalize("w", raw)
	if !strings.Contains(got.Summary, "Take the long") {
		t.Fatalf("summary did not recurse into nested object: %q", got.Summary)
	}
}

func TestSummaryNestingStopsAtOneLevel(t *testing.T) {
	raw := map[string]interface{}{
		"decision": map[string]interface{}{
			"inner": map[string]interface{}{
				"conclusion": "Two levels down: this text must not be surfaced.",
			},
		},
	}
	got := Normalize("w", raw)
	if got.Summary != "No summary provided." {
		t.Fatalf("summary descended past one level: %q", got.Summary)
	}
}

func TestShortSummaryEnrichedWithFindings(t *testing.T) {
	raw := map[string]interface{}{
		"summary":      "Bullish.",
		"key_findings": []interface{}{"RSI at 62", "MACD crossed up"},
	}
	got := Normalize("w", raw)
	if !strings.Contains(got.Summary, "RSI at 62") {
		t.Fatalf("short summary not enriched: %q", got.Summary)
	}
}

func TestLongSummaryNotEnriched(t *testing.T) {
	long := "The chart shows a clean uptrend with higher lows and expanding volume on rallies."
	raw := map[string]interface{}{
		"summary":      long,
		"key_findings": []interface{}{"extra"},
	}
	got := Normalize("w", raw)
	if got.Summary != long {
		t.Fatalf("long summary was modified: %q", got.Summary)
	}
}

func TestConsensusArithmetic(t *testing.T) {
	reports := []Report{
		{Worker: "a", Signal: SignalBullish, Confidence: 0.8},
		{Worker: "b", Signal: SignalBearish, Confidence: 0.4},
		{Worker: "c", Signal: SignalNeutral, Confidence: 0.5},
	}
	c := Consensize(reports)

	if c.Weights[SignalBullish] != 0.8 || c.Weights[SignalBearish] != 0.4 || c.Weights[SignalNeutral] != 0.5 {
		t.Fatalf("weights = %v", c.Weights)
	}
	if c.Signal != SignalBullish {
		t.Fatalf("consensus signal = %s, want BULLISH", c.Signal)
	}
	if math.Abs(c.Strength-0.8/1.7) > 1e-9 {
		t.Fatalf("strength = %v, want %v", c.Strength, 0.8/1.7)
	}
}

func TestConsensusTieBreak(t *testing.T) {
	c := Consensize([]Report{
		{Signal: SignalBullish, Confidence: 0.5},
		{Signal: SignalBearish, Confidence: 0.5},
	})
	if c.Signal != SignalBullish {
		t.Fatalf("tie resolved to %s, want BULLISH", c.Signal)
	}

	c = Consensize([]Report{
		{Signal: SignalBearish, Confidence: 0.5},
		{Signal: SignalNeutral, Confidence: 0.5},
	})
	if c.Signal != SignalBearish {
		t.Fatalf("tie resolved to %s, want BEARISH", c.Signal)
	}
}

func TestConsensusZeroTotal(t *testing.T) {
	c := Consensize([]Report{{Signal: SignalNeutral, Confidence: 0}})
	if c.Strength != 0 {
		t.Fatalf("zero-weight strength = %v, want 0 with guarded divisor", c.Strength)
	}
	if c.Signal != SignalNeutral {
		t.Fatalf("signal = %s, want NEUTRAL", c.Signal)
	}
}
