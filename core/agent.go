package core

import "strings"

// AgentDefinition describes a configured persona: a named agent with a fixed
// system prompt and a provider/model selector. Definitions are value types;
// rosters hand out copies so callers cannot mutate shared state.
type AgentDefinition struct {
	Name         string `json:"name" yaml:"name"`
	Role         string `json:"role" yaml:"role"`
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
	Provider     string `json:"provider" yaml:"provider"`
	Model        string `json:"model" yaml:"model"`
}

// Key returns the stable lookup key for the agent, used by context window and
// memory stores to scope state per (session, agent) and (user, agent) pair.
func (a AgentDefinition) Key() string {
	return strings.ToLower(strings.ReplaceAll(a.Name, " ", "-"))
}
