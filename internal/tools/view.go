package tools

import "context"

// View is a scoped façade over a shared Registry that limits which tools
// a worker can see and call. Two views backed by the same registry share
// one cache: identical calls from different workers hit the same entry.
type View struct {
	registry *Registry
	allowed  map[string]struct{}
	names    []string
}

// Schemas returns the schemas for the allowed tools only.
func (v *View) Schemas() []Schema {
	if v == nil {
		return nil
	}
	return v.registry.Schemas(v.names...)
}

// Execute rejects tools outside the allow-list without touching the
// registry; everything else delegates to the shared registry.
func (v *View) Execute(ctx context.Context, name string, args map[string]interface{}, runCtx map[string]interface{}) interface{} {
	if _, ok := v.allowed[name]; !ok {
		return ErrorValue("tool %q is not available to this agent", name)
	}
	return v.registry.Execute(ctx, name, args, runCtx)
}
