package roster

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/taskmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAgents() []core.AgentDefinition {
	return []core.AgentDefinition{
		{Name: "Research Analyst", Role: "research", SystemPrompt: "You research."},
		{Name: "Writer", Role: "writing", SystemPrompt: "You write."},
		{Name: "Editor", Role: "review", SystemPrompt: "You edit."},
	}
}

func TestResolveExactCaseInsensitive(t *testing.T) {
	r := New(testAgents()...)

	a, ok := r.Resolve("writer")
	require.True(t, ok)
	assert.Equal(t, "Writer", a.Name)

	a, ok = r.Resolve("RESEARCH ANALYST")
	require.True(t, ok)
	assert.Equal(t, "Research Analyst", a.Name)
}

func TestResolveSubstring(t *testing.T) {
	r := New(testAgents()...)

	// Roster name contained in a longer identifier.
	a, ok := r.Resolve("senior writer (content team)")
	require.True(t, ok)
	assert.Equal(t, "Writer", a.Name)
}

func TestResolveMiss(t *testing.T) {
	r := New(testAgents()...)

	_, ok := r.Resolve("Accountant")
	assert.False(t, ok)

	_, ok = r.Resolve("")
	assert.False(t, ok)
}

func TestResolvePrefersExactOverSubstring(t *testing.T) {
	r := New(
		core.AgentDefinition{Name: "Writer Pro"},
		core.AgentDefinition{Name: "Writer"},
	)
	a, ok := r.Resolve("writer")
	require.True(t, ok)
	assert.Equal(t, "Writer", a.Name)
}

func TestLazyFileLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	content := `agents:
  - name: Support Agent
    role: support
    system_prompt: You help customers.
    provider: openai
    model: gpt-4o-mini
  - name: Sales Agent
    role: sales
    system_prompt: You sell.
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r := NewFromFile(path)
	a, ok := r.Resolve("support agent")
	require.True(t, ok)
	assert.Equal(t, "Support Agent", a.Name)
	assert.Equal(t, "openai", a.Provider)

	all, err := r.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoaderCalledOnce(t *testing.T) {
	calls := 0
	r := NewFromLoader(func() ([]core.AgentDefinition, error) {
		calls++
		return testAgents(), nil
	})

	_, _ = r.Resolve("writer")
	_, _ = r.Resolve("editor")
	_, err := r.All()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestLoaderFailure(t *testing.T) {
	r := NewFromLoader(func() ([]core.AgentDefinition, error) {
		return nil, errors.New("boom")
	})

	_, ok := r.Resolve("writer")
	assert.False(t, ok)

	_, err := r.All()
	assert.Error(t, err)
}
