package workflow

import (
	"fmt"
	"sync"
)

// Registry holds workflow definitions in registration order. Detection order
// is part of the contract: the first registered definition with a trigger hit
// wins, so definitions are kept in a slice rather than iterated from a map.
type Registry struct {
	mu    sync.RWMutex
	order []string
	defs  map[string]Definition
}

// NewRegistry constructs a registry pre-loaded with the built-in definitions.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	for _, def := range builtinDefinitions() {
		r.order = append(r.order, def.ID)
		r.defs[def.ID] = def
	}
	return r
}

// Register adds a definition. Definitions are immutable once registered;
// re-registering an existing id is rejected.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("workflow definition requires an id")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow definition %q requires at least one step", def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.ID]; exists {
		return fmt.Errorf("workflow definition %q already registered", def.ID)
	}
	r.order = append(r.order, def.ID)
	r.defs[def.ID] = def
	return nil
}

// Get returns a definition by id.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

// List returns all definitions in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

// Detect returns the first definition (in registration order) whose trigger
// pattern list contains a case-insensitive substring of text.
func (r *Registry) Detect(text string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if r.defs[id].Matches(text) {
			return r.defs[id], true
		}
	}
	return Definition{}, false
}
