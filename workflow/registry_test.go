package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("preloads builtins", func(t *testing.T) {
		r := NewRegistry()

		defs := r.List()
		require.Len(t, defs, 2)
		assert.Equal(t, "content-pipeline", defs[0].ID)
		assert.Equal(t, "product-launch", defs[1].ID)
	})

	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()

		err := r.Register(Definition{
			ID:    "custom",
			Name:  "Custom",
			Steps: []Step{{AgentID: "Writer", Name: "Write"}},
		})
		require.NoError(t, err)

		def, ok := r.Get("custom")
		require.True(t, ok)
		assert.Equal(t, "Custom", def.Name)
	})

	t.Run("rejects invalid definitions", func(t *testing.T) {
		r := NewRegistry()

		assert.Error(t, r.Register(Definition{Name: "no id", Steps: []Step{{AgentID: "a"}}}))
		assert.Error(t, r.Register(Definition{ID: "no-steps"}))
		assert.Error(t, r.Register(Definition{ID: "content-pipeline", Steps: []Step{{AgentID: "a"}}}))
	})

	t.Run("detect in registration order", func(t *testing.T) {
		r := NewRegistry()

		// Shares a trigger with content-pipeline but registered later.
		require.NoError(t, r.Register(Definition{
			ID:              "late",
			Steps:           []Step{{AgentID: "Writer"}},
			TriggerPatterns: []string{"blog post"},
		}))

		def, ok := r.Detect("Please write a BLOG POST about testing")
		require.True(t, ok)
		assert.Equal(t, "content-pipeline", def.ID)
	})

	t.Run("detect miss", func(t *testing.T) {
		r := NewRegistry()

		_, ok := r.Detect("summarize this meeting transcript")
		assert.False(t, ok)
	})
}

func TestDefinitionMatches(t *testing.T) {
	def := Definition{TriggerPatterns: []string{"launch plan", ""}}

	assert.True(t, def.Matches("I need a Launch Plan for Q3"))
	assert.False(t, def.Matches("I need a marketing strategy"))
	assert.False(t, def.Matches(""))
}

func TestAdHocDefinition(t *testing.T) {
	def := AdHocDefinition([]string{"Researcher", "Writer"})

	require.Len(t, def.Steps, 2)
	assert.Equal(t, "Researcher", def.Steps[0].AgentID)
	assert.Equal(t, "Writer", def.Steps[1].AgentID)
	assert.Equal(t, "general", def.Steps[0].Role)
	assert.NotEmpty(t, def.ID)

	other := AdHocDefinition([]string{"Researcher"})
	assert.NotEqual(t, def.ID, other.ID)
}
