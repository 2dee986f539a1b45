// Package memory provides the in-memory long-term knowledge store scoped per
// (user, agent) pair. It is the default core.MemoryStore implementation.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// storedFact pairs a fact with its record time so summaries can surface the
// most recent entries first.
type storedFact struct {
	fact     core.Fact
	recorded time.Time
}

// InMemoryStore is a naive process-local MemoryStore keeping facts in a map
// keyed by (user, agent). Concurrency: protected by RWMutex. Summaries are a
// linear render of the stored facts; swap for a semantic index when real
// retrieval quality matters.
type InMemoryStore struct {
	mu       sync.RWMutex
	facts    map[string][]storedFact
	maxFacts int
}

// Options configure the in-memory store.
type Options struct {
	// MaxFactsPerAgent caps retained facts per (user, agent) pair; oldest
	// entries are evicted first. Zero means unlimited.
	MaxFactsPerAgent int
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{MaxFactsPerAgent: 200}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{
		facts:    make(map[string][]storedFact),
		maxFacts: opts.MaxFactsPerAgent,
	}
}

func factKey(userID, agentKey string) string {
	return userID + "\x00" + agentKey
}

// BuildContextSummary implements core.MemoryStore. Returns "" when nothing is
// known about the (user, agent) pair.
func (m *InMemoryStore) BuildContextSummary(userID, agentKey string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.facts[factKey(userID, agentKey)]
	if len(stored) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("Known context from previous interactions:\n")
	for _, s := range stored {
		sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", s.fact.Category, s.fact.Key, s.fact.Value))
	}
	return sb.String(), nil
}

// RecordFact implements core.MemoryStore.
func (m *InMemoryStore) RecordFact(userID, agentKey string, fact core.Fact) error {
	if fact.Key == "" {
		return fmt.Errorf("fact key must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := factKey(userID, agentKey)
	m.facts[key] = append(m.facts[key], storedFact{fact: fact, recorded: time.Now()})
	if m.maxFacts > 0 && len(m.facts[key]) > m.maxFacts {
		m.facts[key] = m.facts[key][len(m.facts[key])-m.maxFacts:]
	}
	return nil
}

// Facts returns a copy of the stored facts for a (user, agent) pair.
func (m *InMemoryStore) Facts(userID, agentKey string) []core.Fact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.facts[factKey(userID, agentKey)]
	out := make([]core.Fact, len(stored))
	for i, s := range stored {
		out[i] = s.fact
	}
	return out
}

var _ core.MemoryStore = (*InMemoryStore)(nil)
