package task

import (
	"sync"

	"github.com/xraph/courier/schema"
)

// Registry maps task names to their definitions and memoizes schema
// resolution. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]*Definition
	resolved map[string]*schema.Schema
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:     make(map[string]*Definition),
		resolved: make(map[string]*schema.Schema),
	}
}

// Register adds a task definition. Registering the same name again
// replaces the previous definition and drops its memoized schema.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	delete(r.resolved, def.Name)
}

// Get returns the definition for the given task name.
// Returns false if no task is registered under that name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns all registered task names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}

// ResolveSchema returns the definition's argument schema after validating
// its structure, nil when the task declares no arguments. The result is
// memoized per task name: schemas are static, so validation happens at
// most once per definition. Concurrent first callers may validate twice
// and overwrite each other's cache entry, which is harmless because the
// recomputed value is identical.
func (r *Registry) ResolveSchema(def *Definition) (*schema.Schema, error) {
	r.mu.RLock()
	cached, ok := r.resolved[def.Name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if err := def.Schema.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.resolved[def.Name] = def.Schema
	r.mu.Unlock()
	return def.Schema, nil
}
