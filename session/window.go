// Package session provides the in-memory context window store: a rolling,
// token-bounded message window per (session, agent) pair. It is the default
// core.ContextWindowStore implementation; durable deployments swap in their
// own behind the same interface.
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"github.com/pkoukk/tiktoken-go"
)

// Options configure the window store.
type Options struct {
	// TokenBudget bounds the total token count of the messages returned by
	// OptimizedMessages. Oldest turns are dropped first when over budget.
	TokenBudget int

	// Encoding names the tiktoken encoding used for counting. When the
	// encoding cannot be loaded the store falls back to a bytes/4 heuristic.
	Encoding string
}

// WindowStore is a volatile core.ContextWindowStore keeping windows in a
// process-local map keyed by (session, agent). Safe for concurrent access.
type WindowStore struct {
	mu      sync.RWMutex
	windows map[string]*window
	budget  int
	enc     *tiktoken.Tiktoken
}

type window struct {
	agentName    string
	systemPrompt string
	messages     []core.Message
}

// NewWindowStore constructs an empty window store. Defaults: 4000 token
// budget, cl100k_base encoding.
func NewWindowStore(optFns ...func(o *Options)) *WindowStore {
	opts := Options{
		TokenBudget: 4000,
		Encoding:    "cl100k_base",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	enc, err := tiktoken.GetEncoding(opts.Encoding)
	if err != nil {
		enc = nil // heuristic fallback
	}
	return &WindowStore{
		windows: make(map[string]*window),
		budget:  opts.TokenBudget,
		enc:     enc,
	}
}

func windowKey(sessionID, agentKey string) string {
	return sessionID + "\x00" + agentKey
}

// EnsureWindow implements core.ContextWindowStore.
func (s *WindowStore) EnsureWindow(sessionID, agentKey, agentName, systemPrompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := windowKey(sessionID, agentKey)
	if _, ok := s.windows[key]; ok {
		return
	}
	s.windows[key] = &window{agentName: agentName, systemPrompt: systemPrompt}
}

// AppendMessage implements core.ContextWindowStore.
func (s *WindowStore) AppendMessage(sessionID, agentKey string, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := windowKey(sessionID, agentKey)
	w, ok := s.windows[key]
	if !ok {
		return fmt.Errorf("no window for session %s agent %s", sessionID, agentKey)
	}
	w.messages = append(w.messages, msg)
	return nil
}

// OptimizedMessages implements core.ContextWindowStore. It returns the most
// recent messages whose combined token count fits the budget, preserving
// order. The window itself is left untouched.
func (s *WindowStore) OptimizedMessages(sessionID, agentKey string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[windowKey(sessionID, agentKey)]
	if !ok {
		return nil, fmt.Errorf("no window for session %s agent %s", sessionID, agentKey)
	}

	total := 0
	start := len(w.messages)
	for i := len(w.messages) - 1; i >= 0; i-- {
		cost := s.countTokens(w.messages[i].Content)
		if total+cost > s.budget && start < len(w.messages) {
			break
		}
		total += cost
		start = i
	}

	out := make([]core.Message, len(w.messages)-start)
	copy(out, w.messages[start:])
	return out, nil
}

// ClearSession implements core.ContextWindowStore, dropping every agent
// window belonging to the session.
func (s *WindowStore) ClearSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := sessionID + "\x00"
	for key := range s.windows {
		if strings.HasPrefix(key, prefix) {
			delete(s.windows, key)
		}
	}
	return nil
}

// countTokens uses tiktoken when available, otherwise a conservative bytes/4
// approximation.
func (s *WindowStore) countTokens(text string) int {
	if s.enc != nil {
		return len(s.enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

var _ core.ContextWindowStore = (*WindowStore)(nil)
