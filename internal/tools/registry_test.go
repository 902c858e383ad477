package tools

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func testSchema(name string) Schema {
	return Schema{
		Name:        name,
		Description: "test tool",
		Parameters:  map[string]interface{}{"type": "object"},
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg := NewRegistry(nil)
	fn := func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "ok", nil
	}
	if err := reg.Register(testSchema("dup"), fn, time.Minute); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := reg.Register(testSchema("dup"), fn, time.Minute); err == nil {
		t.Fatal("expected error registering duplicate tool name")
	}
}

func TestCacheSharedAcrossViews(t *testing.T) {
	reg := NewRegistry(nil)
	var calls int64
	err := reg.Register(testSchema("quote"), func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return map[string]interface{}{"price": 42.0}, nil
	}, time.Minute)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	a := reg.View("quote")
	b := reg.View("quote")
	args := map[string]interface{}{"ticker": "AAPL"}

	r1 := a.Execute(context.Background(), "quote", args, nil)
	r2 := b.Execute(context.Background(), "quote", args, nil)

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("callable invoked %d times, want 1", got)
	}
	m1, m2 := r1.(map[string]interface{}), r2.(map[string]interface{})
	if m1["price"] != m2["price"] {
		t.Fatalf("views saw different results: %v vs %v", r1, r2)
	}
}

func TestCacheKeyOrderIndependent(t *testing.T) {
	reg := NewRegistry(nil)
	var calls int64
	err := reg.Register(testSchema("hist"), func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return "data", nil
	}, time.Minute)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	reg.Execute(context.Background(), "hist", map[string]interface{}{"ticker": "MSFT", "days": 30.0}, nil)
	reg.Execute(context.Background(), "hist", map[string]interface{}{"days": 30.0, "ticker": "MSFT"}, nil)

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("callable invoked %d times for key-equal args, want 1", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	reg := NewRegistry(nil)
	now := time.Now()
	reg.now = func() time.Time { return now }

	var calls int64
	err := reg.Register(testSchema("stale"), func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return "v", nil
	}, 10*time.Second)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	reg.Execute(context.Background(), "stale", nil, nil)
	reg.Execute(context.Background(), "stale", nil, nil)
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("callable invoked %d times within TTL, want 1", got)
	}

	now = now.Add(11 * time.Second)
	reg.Execute(context.Background(), "stale", nil, nil)
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Fatalf("callable invoked %d times after expiry, want 2", got)
	}
}

func TestExecuteErrorBecomesValue(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.Register(testSchema("boom"), func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, context.DeadlineExceeded
	}, time.Minute)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	result := reg.Execute(context.Background(), "boom", nil, nil)
	m, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("want error value map, got %T", result)
	}
	if m["error"] == "" || m["error"] == nil {
		t.Fatalf("error value missing message: %v", m)
	}
}

func TestUnknownToolErrorValue(t *testing.T) {
	reg := NewRegistry(nil)
	result := reg.Execute(context.Background(), "nope", nil, nil)
	m, ok := result.(map[string]interface{})
	if !ok || m["error"] == nil {
		t.Fatalf("want {error}, got %v", result)
	}
}

func TestErrorResultsNotCached(t *testing.T) {
	reg := NewRegistry(nil)
	var calls int64
	err := reg.Register(testSchema("flaky"), func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return nil, context.DeadlineExceeded
	}, time.Minute)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	reg.Execute(context.Background(), "flaky", nil, nil)
	reg.Execute(context.Background(), "flaky", nil, nil)
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Fatalf("failing callable invoked %d times, want 2 (errors must not be cached)", got)
	}
}

func TestViewRestriction(t *testing.T) {
	reg := NewRegistry(nil)
	var calls int64
	err := reg.Register(testSchema("secret"), func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return "classified", nil
	}, time.Minute)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	view := reg.View("other")
	result := view.Execute(context.Background(), "secret", nil, nil)

	m, ok := result.(map[string]interface{})
	if !ok || m["error"] == nil {
		t.Fatalf("restricted call should return {error}, got %v", result)
	}
	if got := atomic.LoadInt64(&calls); got != 0 {
		t.Fatalf("restricted call reached the callable %d times, want 0", got)
	}
}

func TestViewSchemasOnlyAllowed(t *testing.T) {
	reg := NewRegistry(nil)
	fn := func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil }
	for _, name := range []string{"a", "b", "c"} {
		if err := reg.Register(testSchema(name), fn, time.Minute); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	schemas := reg.View("a", "c").Schemas()
	if len(schemas) != 2 {
		t.Fatalf("got %d schemas, want 2", len(schemas))
	}
	for _, s := range schemas {
		if s.Name == "b" {
			t.Fatal("view leaked schema for non-allowed tool")
		}
	}
}

func TestContextToolReceivesRunContext(t *testing.T) {
	reg := NewRegistry(nil)
	var seen map[string]interface{}
	err := reg.RegisterWithContext(testSchema("ctxtool"), func(ctx context.Context, args, runCtx map[string]interface{}) (interface{}, error) {
		seen = runCtx
		return "ok", nil
	}, 0)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	runCtx := map[string]interface{}{"ticker": "NVDA"}
	reg.Execute(context.Background(), "ctxtool", nil, runCtx)
	if seen == nil || seen["ticker"] != "NVDA" {
		t.Fatalf("context tool did not receive run context: %v", seen)
	}
}

func TestClearCache(t *testing.T) {
	reg := NewRegistry(nil)
	var calls int64
	err := reg.Register(testSchema("cc"), func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return "v", nil
	}, time.Minute)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	reg.Execute(context.Background(), "cc", nil, nil)
	reg.ClearCache()
	reg.Execute(context.Background(), "cc", nil, nil)
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Fatalf("callable invoked %d times across a cache clear, want 2", got)
	}
}
