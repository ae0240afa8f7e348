package workflow

import (
	"encoding/json"
	"fmt"
	"sync"
)

// RunnerFunc is a type-erased workflow runner that accepts raw JSON input.
// The typed Definition[T] is converted to a RunnerFunc at registration
// time by closing over JSON unmarshal + the typed handler.
type RunnerFunc func(wf *Workflow, input []byte) (any, error)

// KeyFunc extracts the correlation key from raw JSON input.
type KeyFunc func(input []byte) (string, error)

// entry holds the type-erased pieces of a registered definition.
type entry struct {
	runner RunnerFunc
	key    KeyFunc // nil when the workflow declares no correlation key
}

// Registry maps workflow kinds to type-erased runner functions.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register registers a typed workflow definition. The generic handler is
// wrapped in a closure that JSON-unmarshals the input into T before calling
// the typed handler. Registering the same name twice replaces the earlier
// definition.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Register[T any](r *Registry, def *Definition[T]) {
	runner := func(wf *Workflow, input []byte) (any, error) {
		var t T
		if len(input) > 0 {
			if err := json.Unmarshal(input, &t); err != nil {
				return nil, fmt.Errorf("unmarshal input for workflow %q: %w", def.Name, err)
			}
		}
		return def.Handler(wf, t)
	}

	var key KeyFunc
	if def.CorrelationKey != nil {
		extract := def.CorrelationKey
		key = func(input []byte) (string, error) {
			var t T
			if len(input) > 0 {
				if err := json.Unmarshal(input, &t); err != nil {
					return "", fmt.Errorf("unmarshal input for workflow %q: %w", def.Name, err)
				}
			}
			return extract(t), nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = entry{runner: runner, key: key}
}

// Get returns the runner for the given workflow kind.
// Returns false if no runner is registered.
func (r *Registry) Get(name string) (RunnerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.runner, true
}

// CorrelationKey extracts the correlation key for the given workflow kind
// from raw input. Returns "" when the workflow declares no key.
func (r *Registry) CorrelationKey(name string, input []byte) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok || e.key == nil {
		return "", nil
	}
	return e.key(input)
}

// CancellableKinds returns the names of workflows that declare a
// correlation key and therefore accept cancellation signals.
func (r *Registry) CancellableKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if e.key != nil {
			kinds = append(kinds, name)
		}
	}
	return kinds
}

// Names returns all registered workflow kinds.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
