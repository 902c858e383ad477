package core

import "testing"

func TestDecodePlainObject(t *testing.T) {
	got, err := decodeReport(`{"signal": "BULLISH", "confidence": 0.8}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["signal"] != "BULLISH" {
		t.Fatalf("signal = %v", got["signal"])
	}
}

func TestDecodeFencedObject(t *testing.T) {
	raw := "```json\n{\"signal\": \"BEARISH\"}\n```"
	got, err := decodeReport(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["signal"] != "BEARISH" {
		t.Fatalf("signal = %v", got["signal"])
	}
}

func TestDecodeFenceWithoutLanguageTag(t *testing.T) {
	raw := "```\n{\"ok\": true}\n```"
	got, err := decodeReport(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["ok"] != true {
		t.Fatalf("ok = %v", got["ok"])
	}
}

func TestDecodeBalancedFallback(t *testing.T) {
	raw := `Here is my analysis: {"signal": "NEUTRAL", "note": "tricky {braces} in \"strings\""} hope that helps.`
	got, err := decodeReport(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["signal"] != "NEUTRAL" {
		t.Fatalf("signal = %v", got["signal"])
	}
}

func TestDecodeArrayCollapsesToFirst(t *testing.T) {
	got, err := decodeReport(`[{"signal": "BULLISH"}, {"signal": "BEARISH"}]`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["signal"] != "BULLISH" {
		t.Fatalf("signal = %v, want first element", got["signal"])
	}
}

func TestDecodeEmptyArrayIsEmptyObject(t *testing.T) {
	got, err := decodeReport(`[]`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty object", got)
	}
}

func TestDecodeGarbageFails(t *testing.T) {
	if _, err := decodeReport("I could not produce JSON, sorry."); err == nil {
		t.Fatal("expected parse error for non-JSON output")
	}
}

func TestDecodeUnbalancedFails(t *testing.T) {
	if _, err := decodeReport(`prefix {"signal": "BULLISH"`); err == nil {
		t.Fatal("expected parse error for unbalanced braces")
	}
}
