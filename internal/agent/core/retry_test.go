package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// stubProvider fails with a scripted sequence of errors, then succeeds.
type stubProvider struct {
	errs  []error
	calls int
	resp  ChatResponse
}

func (s *stubProvider) Generate(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return ChatResponse{}, err
	}
	return s.resp, nil
}

func TestIsRetryableClassification(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"HTTP 503 Service Unavailable", true},
		{"rate limit exceeded, slow down", true},
		{"quota exhausted for project", true},
		{"server overloaded", true},
		{"context deadline exceeded", true},
		{"OpenAI status 429", true},
		{"401 Unauthorized", false},
		{"invalid api key provided", false},
		{"400 Bad Request", false},
		{"403 Forbidden", false},
		{"something completely unrecognized", false},
		{"400 bad request while rate limited", false},
	}
	for _, tc := range cases {
		if got := isRetryable(fmt.Errorf("%s", tc.msg)); got != tc.want {
			t.Errorf("isRetryable(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

func TestRetryTransientThenSuccess(t *testing.T) {
	p := &stubProvider{
		errs: []error{fmt.Errorf("503 unavailable"), fmt.Errorf("503 unavailable")},
		resp: ChatResponse{Text: `{"ok": true}`},
	}

	start := time.Now()
	resp, err := generateWithRetry(context.Background(), p, ChatRequest{}, 3)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if resp.Text != `{"ok": true}` {
		t.Fatalf("resp = %+v", resp)
	}
	if p.calls != 3 {
		t.Fatalf("provider called %d times, want 3", p.calls)
	}
	// Two backoffs: ~1-2s then ~2-3s.
	if elapsed := time.Since(start); elapsed < 3*time.Second {
		t.Fatalf("retries returned after %v, expected at least 3s of backoff", elapsed)
	}
}

func TestRetryFatalFailsImmediately(t *testing.T) {
	p := &stubProvider{
		errs: []error{fmt.Errorf("401 Unauthorized"), fmt.Errorf("should never be reached")},
	}

	start := time.Now()
	_, err := generateWithRetry(context.Background(), p, ChatRequest{}, 3)
	if err == nil {
		t.Fatal("expected immediate failure")
	}
	if p.calls != 1 {
		t.Fatalf("provider called %d times, want 1", p.calls)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("fatal error took %v, expected no backoff delay", elapsed)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	p := &stubProvider{
		errs: []error{
			fmt.Errorf("429 too many requests"),
			fmt.Errorf("429 too many requests"),
		},
	}
	_, err := generateWithRetry(context.Background(), p, ChatRequest{}, 1)
	if err == nil {
		t.Fatal("expected failure after budget exhausted")
	}
	if p.calls != 2 {
		t.Fatalf("provider called %d times, want 2", p.calls)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	p := &stubProvider{
		errs: []error{fmt.Errorf("503"), fmt.Errorf("503"), fmt.Errorf("503")},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := generateWithRetry(ctx, p, ChatRequest{}, 3)
	if err == nil {
		t.Fatal("expected context error")
	}
	if p.calls != 1 {
		t.Fatalf("provider called %d times, want 1 before cancellation", p.calls)
	}
}
