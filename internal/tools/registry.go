package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesquad_tool_executions_total",
		Help: "Tool invocations that reached the underlying callable",
	}, []string{"tool"})
	toolCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesquad_tool_cache_hits_total",
		Help: "Tool invocations served from the shared result cache",
	}, []string{"tool"})
	toolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesquad_tool_errors_total",
		Help: "Tool invocations that returned an error value",
	}, []string{"tool"})
)

// Func is a plain tool implementation. Expected failure modes (network
// errors, missing data) should be returned as a Go error; the registry
// converts them to a structured {"error": ...} value at the boundary.
type Func func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ContextFunc is a tool implementation that additionally receives the
// per-run context map (portfolio snapshot, gathered market data). Tools
// advertise the need for run context by registering through
// RegisterWithContext; there is no signature inspection at call time.
type ContextFunc func(ctx context.Context, args map[string]interface{}, runCtx map[string]interface{}) (interface{}, error)

// Schema describes a tool to the model provider, OpenAI function style.
type Schema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type toolSpec struct {
	schema Schema
	fn     Func
	ctxFn  ContextFunc
	ttl    time.Duration
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// Registry holds the named tools available to analysis workers and a
// result cache shared across every worker in the process. Tool results
// for identical (name, arguments) pairs are computed once per TTL window
// no matter how many workers ask.
type Registry struct {
	mu     sync.RWMutex
	specs  map[string]toolSpec
	cache  map[string]cacheEntry
	now    func() time.Time
	logger *log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(log.Writer(), "[TOOLS] ", log.LstdFlags)
	}
	return &Registry{
		specs:  make(map[string]toolSpec),
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
		logger: logger,
	}
}

// Register adds a tool. Registering a name twice is an error: the registry
// is assembled once at startup and a silent overwrite would mask wiring bugs.
func (r *Registry) Register(schema Schema, fn Func, ttl time.Duration) error {
	return r.register(schema, toolSpec{schema: schema, fn: fn, ttl: ttl})
}

// RegisterWithContext adds a tool whose implementation receives the
// per-run context map on every invocation.
func (r *Registry) RegisterWithContext(schema Schema, fn ContextFunc, ttl time.Duration) error {
	return r.register(schema, toolSpec{schema: schema, ctxFn: fn, ttl: ttl})
}

func (r *Registry) register(schema Schema, spec toolSpec) error {
	if schema.Name == "" {
		return fmt.Errorf("tool schema has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[schema.Name]; exists {
		return fmt.Errorf("tool %q already registered", schema.Name)
	}
	r.specs[schema.Name] = spec
	return nil
}

// Schemas returns the schemas for the requested tool names, or for every
// registered tool when no names are given. Unknown names are skipped.
func (r *Registry) Schemas(names ...string) []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(names) == 0 {
		out := make([]Schema, 0, len(r.specs))
		for _, s := range r.specs {
			out = append(out, s.schema)
		}
		return out
	}
	out := make([]Schema, 0, len(names))
	for _, name := range names {
		if s, ok := r.specs[name]; ok {
			out = append(out, s.schema)
		}
	}
	return out
}

// Execute runs a tool, serving live cache entries without invoking the
// callable. Failures never cross this boundary as Go errors: unknown
// tools and callable failures both come back as {"error": ...} values.
// Concurrent executions with the same key may race to fill the cache;
// the loser overwrites the winner, which is harmless.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}, runCtx map[string]interface{}) interface{} {
	r.mu.RLock()
	spec, ok := r.specs[name]
	r.mu.RUnlock()
	if !ok {
		return ErrorValue("tool %q not found", name)
	}

	key := cacheKey(name, args)
	r.mu.RLock()
	entry, hit := r.cache[key]
	now := r.now()
	r.mu.RUnlock()
	if hit && now.Before(entry.expiresAt) {
		toolCacheHits.WithLabelValues(name).Inc()
		return entry.value
	}

	toolExecutions.WithLabelValues(name).Inc()
	var (
		result interface{}
		err    error
	)
	if spec.ctxFn != nil {
		result, err = spec.ctxFn(ctx, args, runCtx)
	} else {
		result, err = spec.fn(ctx, args)
	}
	if err != nil {
		toolErrors.WithLabelValues(name).Inc()
		r.logger.Printf("tool %s failed: %v", name, err)
		return ErrorValue("%v", err)
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{value: result, expiresAt: r.now().Add(spec.ttl)}
	r.mu.Unlock()
	return result
}

// View returns a read-only façade exposing only the named tools.
// Execution and caching delegate back to this registry, so results are
// shared across all views and all workers.
func (r *Registry) View(allowed ...string) *View {
	set := make(map[string]struct{}, len(allowed))
	names := make([]string, 0, len(allowed))
	for _, name := range allowed {
		if _, dup := set[name]; dup {
			continue
		}
		set[name] = struct{}{}
		names = append(names, name)
	}
	return &View{registry: r, allowed: set, names: names}
}

// ClearCache drops every cached result. Only safe between runs, when no
// worker is executing tools.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
}

// ErrorValue builds the structured error value tools surface to models.
func ErrorValue(format string, args ...interface{}) map[string]interface{} {
	return map[string]interface{}{"error": fmt.Sprintf(format, args...)}
}

// cacheKey derives a deterministic key from the tool name and arguments.
// encoding/json serialises map keys in sorted order, so the encoding is
// canonical and independent of argument insertion order, including for
// nested maps.
func cacheKey(name string, args map[string]interface{}) string {
	if len(args) == 0 {
		return name
	}
	b, err := json.Marshal(args)
	if err != nil {
		// Unserialisable arguments cannot be cached deterministically;
		// fall back to a per-call key via the raw fmt encoding.
		return fmt.Sprintf("%s|%v", name, args)
	}
	return name + "|" + string(b)
}
