package workflow

import (
	"strings"

	"github.com/hupe1980/taskmesh/core"
)

// Step describes one workflow step: which agent runs, what it is asked to do
// and which named output fields the hand-off extractor looks for.
type Step struct {
	AgentID         string   `json:"agent_id" yaml:"agent_id"`
	Name            string   `json:"name" yaml:"name"`
	Role            string   `json:"role" yaml:"role"`
	Instructions    string   `json:"instructions" yaml:"instructions"`
	RequiredOutputs []string `json:"required_outputs,omitempty" yaml:"required_outputs,omitempty"`
}

// Definition is an immutable ordered list of steps plus optional keyword
// trigger patterns for auto-detection. Identified by a unique id; never
// mutated after registration.
type Definition struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Description     string   `json:"description" yaml:"description"`
	Steps           []Step   `json:"steps" yaml:"steps"`
	TriggerPatterns []string `json:"trigger_patterns,omitempty" yaml:"trigger_patterns,omitempty"`
}

// Matches reports whether any trigger pattern is a case-insensitive substring
// of the given text.
func (d Definition) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range d.TriggerPatterns {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// AdHocDefinition synthesizes a definition from a bare list of agent names:
// one step per agent, role "general", no instructions.
func AdHocDefinition(agentNames []string) Definition {
	steps := make([]Step, len(agentNames))
	for i, name := range agentNames {
		steps[i] = Step{
			AgentID: name,
			Name:    name,
			Role:    "general",
		}
	}
	return Definition{
		ID:          "adhoc-" + core.NewID(),
		Name:        "Ad-hoc workflow",
		Description: "Synthesized from an explicit agent list",
		Steps:       steps,
	}
}

// builtinDefinitions returns the two definitions that ship pre-registered.
func builtinDefinitions() []Definition {
	return []Definition{
		{
			ID:          "content-pipeline",
			Name:        "Content Pipeline",
			Description: "Research a topic, draft an article, review and polish it",
			Steps: []Step{
				{
					AgentID:         "Research Analyst",
					Name:            "Research",
					Role:            "research",
					Instructions:    "Research the topic thoroughly. Collect key facts, statistics and sources.",
					RequiredOutputs: []string{"key_findings", "sources"},
				},
				{
					AgentID:         "Writer",
					Name:            "Draft",
					Role:            "writing",
					Instructions:    "Write a complete first draft based on the research findings.",
					RequiredOutputs: []string{"draft", "headline"},
				},
				{
					AgentID:      "Editor",
					Name:         "Review",
					Role:         "review",
					Instructions: "Review the draft for clarity, accuracy and tone. Produce the final version.",
				},
			},
			TriggerPatterns: []string{"write an article", "blog post", "write content", "content about"},
		},
		{
			ID:          "product-launch",
			Name:        "Product Launch Plan",
			Description: "Analyze the market, define positioning and produce launch copy",
			Steps: []Step{
				{
					AgentID:         "Research Analyst",
					Name:            "Market Analysis",
					Role:            "research",
					Instructions:    "Analyze the target market, competitors and pricing landscape.",
					RequiredOutputs: []string{"target_audience", "competitors"},
				},
				{
					AgentID:         "Strategist",
					Name:            "Positioning",
					Role:            "strategy",
					Instructions:    "Define positioning, messaging pillars and a launch timeline.",
					RequiredOutputs: []string{"positioning", "timeline"},
				},
				{
					AgentID:      "Writer",
					Name:         "Launch Copy",
					Role:         "writing",
					Instructions: "Write the launch announcement and landing page copy.",
				},
			},
			TriggerPatterns: []string{"product launch", "launch plan", "go to market", "go-to-market"},
		},
	}
}
