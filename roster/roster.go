// Package roster resolves logical agent names to concrete agent definitions.
// A roster is loaded once, lazily, and cached for the process lifetime; both
// engines share a single instance.
package roster

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"gopkg.in/yaml.v3"
)

// Roster is a lazily loaded, read-mostly collection of agent definitions.
// Lookup misses return false rather than an error; callers decide whether a
// miss is fatal (workflow steps treat it as skippable).
type Roster struct {
	mu     sync.RWMutex
	loader func() ([]core.AgentDefinition, error)
	agents []core.AgentDefinition
	loaded bool
}

// New constructs a roster from in-memory definitions.
func New(defs ...core.AgentDefinition) *Roster {
	return &Roster{agents: defs, loaded: true}
}

// NewFromFile constructs a roster backed by a YAML file. The file is not read
// until the first lookup; a load failure surfaces on every subsequent call
// until it succeeds.
func NewFromFile(path string) *Roster {
	return &Roster{loader: func() ([]core.AgentDefinition, error) {
		return loadFile(path)
	}}
}

// NewFromLoader constructs a roster backed by an arbitrary loader function,
// invoked once on first use and cached.
func NewFromLoader(loader func() ([]core.AgentDefinition, error)) *Roster {
	return &Roster{loader: loader}
}

// rosterFile is the on-disk YAML shape.
type rosterFile struct {
	Agents []core.AgentDefinition `yaml:"agents"`
}

func loadFile(path string) ([]core.AgentDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse roster file: %w", err)
	}
	return rf.Agents, nil
}

// ensureLoaded runs the loader exactly once on success; failed loads are
// retried on the next call.
func (r *Roster) ensureLoaded() error {
	r.mu.RLock()
	if r.loaded {
		r.mu.RUnlock()
		return nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	agents, err := r.loader()
	if err != nil {
		return err
	}
	r.agents = agents
	r.loaded = true
	return nil
}

// Resolve returns the first roster entry whose name matches the identifier
// case-insensitively, or whose name is a case-insensitive substring of the
// identifier. The second return is false on a miss or load failure.
func (r *Roster) Resolve(identifier string) (core.AgentDefinition, bool) {
	if err := r.ensureLoaded(); err != nil {
		return core.AgentDefinition{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	target := strings.ToLower(strings.TrimSpace(identifier))
	if target == "" {
		return core.AgentDefinition{}, false
	}
	for _, a := range r.agents {
		if strings.ToLower(a.Name) == target {
			return a, true
		}
	}
	for _, a := range r.agents {
		if strings.Contains(target, strings.ToLower(a.Name)) {
			return a, true
		}
	}
	return core.AgentDefinition{}, false
}

// All returns a copy of every definition in roster order.
func (r *Roster) All() ([]core.AgentDefinition, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.AgentDefinition, len(r.agents))
	copy(out, r.agents)
	return out, nil
}
