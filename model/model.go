package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// Request captures the normalized model input produced by the engines.
// Provider and Model select the backend; empty values fall back to the
// adapter's configured defaults.
type Request struct {
	Provider    string         `json:"provider,omitempty"`
	Model       string         `json:"model,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Messages    []core.Message `json:"messages"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed generation for a Request. Usage may be nil when
// the provider does not report counters.
type Response struct {
	Content string      `json:"content"`
	Model   string      `json:"model"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Model is the minimal interface required by the engines to drive generation.
// A single call is awaited to completion; the engines do not retry, so a
// failure aborts the current step or turn.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Registry dispatches requests to provider adapters by the request's Provider
// selector. The zero value is not usable; construct with NewRegistry.
type Registry struct {
	mu              sync.RWMutex
	models          map[string]Model
	defaultProvider string
}

// NewRegistry constructs a registry. The first registered provider becomes
// the default unless SetDefault overrides it.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register binds a provider name to a model adapter.
func (r *Registry) Register(provider string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.models) == 0 {
		r.defaultProvider = provider
	}
	r.models[provider] = m
}

// SetDefault selects the provider used for requests without a selector.
func (r *Registry) SetDefault(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultProvider = provider
}

// Resolve returns the adapter for a provider name, falling back to the
// default provider when the name is empty.
func (r *Registry) Resolve(provider string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if provider == "" {
		provider = r.defaultProvider
	}
	m, ok := r.models[provider]
	if !ok {
		return nil, fmt.Errorf("model provider %q not registered", provider)
	}
	return m, nil
}

// Generate implements Model by dispatching to the adapter selected by
// req.Provider, allowing a Registry to be used anywhere a Model is expected.
func (r *Registry) Generate(ctx context.Context, req Request) (*Response, error) {
	m, err := r.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}
	return m.Generate(ctx, req)
}

// Info implements Model, describing the default provider's adapter.
func (r *Registry) Info() Info {
	m, err := r.Resolve("")
	if err != nil {
		return Info{Name: "unconfigured", Provider: "registry"}
	}
	return m.Info()
}
