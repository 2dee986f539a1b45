package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/memory"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/roster"
	"github.com/hupe1980/taskmesh/session"
	"github.com/hupe1980/taskmesh/status"
	"github.com/hupe1980/taskmesh/usage"
)

type engineFixture struct {
	engine  *Engine
	mock    *model.MockModel
	windows *session.WindowStore
	memory  *memory.InMemoryStore
	usage   *usage.Ledger
	status  *status.Stream
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	ros := roster.New(
		core.AgentDefinition{Name: "Research Analyst", Role: "research", SystemPrompt: "You research."},
		core.AgentDefinition{Name: "Writer", Role: "writing", SystemPrompt: "You write."},
		core.AgentDefinition{Name: "Editor", Role: "review", SystemPrompt: "You edit."},
	)
	mock := model.NewMockModel("mock-model", "mock")
	f := &engineFixture{
		mock:    mock,
		windows: session.NewWindowStore(),
		memory:  memory.NewInMemoryStore(),
		usage:   usage.NewLedger(),
		status:  status.NewStream(),
	}
	f.engine = New(ros, mock, func(o *Options) {
		o.Windows = f.windows
		o.Memory = f.memory
		o.Usage = f.usage
		o.Status = f.status
	})
	return f
}

func TestEngineStart(t *testing.T) {
	t.Run("explicit workflow id runs all steps", func(t *testing.T) {
		f := newEngineFixture(t)
		require.NoError(t, f.engine.Registry().Register(Definition{
			ID:   "two-step",
			Name: "Two Step",
			Steps: []Step{
				{AgentID: "Research Analyst", Name: "Research", RequiredOutputs: []string{"key_findings"}},
				{AgentID: "Writer", Name: "Draft"},
			},
		}))
		f.mock.QueueResponse(
			"key_findings: Go is popular",
			"The final article.",
		)

		res, err := f.engine.Start(context.Background(), StartRequest{
			UserID:     "u1",
			SessionID:  "s1",
			Input:      "topic",
			WorkflowID: "two-step",
		})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, "The final article.", res.Result)

		exec, ok := f.engine.Execution(res.ExecutionID)
		require.True(t, ok)
		require.Len(t, exec.Steps, 2)
		assert.Equal(t, StepCompleted, exec.Steps[0].Status)
		assert.Equal(t, StepCompleted, exec.Steps[1].Status)
		assert.Equal(t, "Go is popular", exec.Steps[0].Handoff["key_findings"])
		assert.Positive(t, exec.Steps[0].Tokens)

		// Two model calls, both usage-logged.
		assert.Equal(t, 2, f.mock.CallCount())
		assert.Len(t, f.usage.Records(), 2)
	})

	t.Run("hand-off data flows into next step input", func(t *testing.T) {
		f := newEngineFixture(t)
		require.NoError(t, f.engine.Registry().Register(Definition{
			ID: "flow",
			Steps: []Step{
				{AgentID: "Research Analyst", Name: "Research", RequiredOutputs: []string{"key_findings"}},
				{AgentID: "Writer", Name: "Draft", Instructions: "Write it up."},
			},
		}))
		f.mock.QueueResponse("key_findings: widgets sell well", "done")

		_, err := f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1", Input: "analyze widgets", WorkflowID: "flow",
		})
		require.NoError(t, err)

		reqs := f.mock.Requests()
		require.Len(t, reqs, 2)
		second := reqs[1].Messages[len(reqs[1].Messages)-1].Content
		assert.Contains(t, second, "Original Request:\nanalyze widgets")
		assert.Contains(t, second, "Previous Step Output:\nkey_findings: widgets sell well")
		assert.Contains(t, second, "Handoff Data:")
		assert.Contains(t, second, "widgets sell well")
		assert.Contains(t, second, "Instructions:\nWrite it up.")
	})

	t.Run("missing agent skips step and continues", func(t *testing.T) {
		f := newEngineFixture(t)
		require.NoError(t, f.engine.Registry().Register(Definition{
			ID: "with-ghost",
			Steps: []Step{
				{AgentID: "Research Analyst", Name: "Research"},
				{AgentID: "Ghost", Name: "Vanish"},
				{AgentID: "Writer", Name: "Draft"},
			},
		}))
		f.mock.QueueResponse("research output", "writer output")

		res, err := f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1", Input: "topic", WorkflowID: "with-ghost",
		})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, "writer output", res.Result)

		exec, _ := f.engine.Execution(res.ExecutionID)
		assert.Equal(t, StepCompleted, exec.Steps[0].Status)
		assert.Equal(t, StepSkipped, exec.Steps[1].Status)
		assert.Equal(t, "Employee not found", exec.Steps[1].Error)
		assert.Equal(t, StepCompleted, exec.Steps[2].Status)
		assert.Equal(t, 2, f.mock.CallCount())
	})

	t.Run("all steps skipped completes with original input", func(t *testing.T) {
		f := newEngineFixture(t)
		res, err := f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1", Input: "the request",
			Agents: []string{"Nobody", "NoOneElse"},
		})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, "the request", res.Result)
		assert.Zero(t, f.mock.CallCount())
	})

	t.Run("model error fails execution and aborts remaining steps", func(t *testing.T) {
		f := newEngineFixture(t)
		f.mock.FailWith(errors.New("provider unavailable"))

		res, err := f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1", Input: "topic",
			Agents: []string{"Research Analyst", "Writer"},
		})
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, res.Status)
		assert.Contains(t, res.Error, "provider unavailable")

		exec, _ := f.engine.Execution(res.ExecutionID)
		assert.Equal(t, StepFailed, exec.Steps[0].Status)
		assert.Equal(t, StepPending, exec.Steps[1].Status)
		assert.Equal(t, 1, f.mock.CallCount())
	})

	t.Run("agent list builds ad-hoc workflow", func(t *testing.T) {
		f := newEngineFixture(t)
		f.mock.QueueResponse("editor says fine")

		res, err := f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1", Input: "check this",
			Agents: []string{"Editor"},
		})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, "editor says fine", res.Result)

		exec, _ := f.engine.Execution(res.ExecutionID)
		assert.Contains(t, exec.DefinitionID, "adhoc-")
	})

	t.Run("keyword auto-detection", func(t *testing.T) {
		f := newEngineFixture(t)
		f.mock.QueueResponse("r", "w", "e")

		res, err := f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1",
			Input: "Please write an article about Go generics",
		})
		require.NoError(t, err)

		exec, _ := f.engine.Execution(res.ExecutionID)
		assert.Equal(t, "content-pipeline", exec.DefinitionID)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, 3, f.mock.CallCount())
	})

	t.Run("no suitable workflow", func(t *testing.T) {
		f := newEngineFixture(t)

		_, err := f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1", Input: "summarize this meeting transcript",
		})
		require.ErrorIs(t, err, core.ErrNoSuitableWorkflow)

		_, err = f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1", Input: "anything", WorkflowID: "does-not-exist",
		})
		require.ErrorIs(t, err, core.ErrNoSuitableWorkflow)
		assert.Zero(t, f.mock.CallCount())
	})

	t.Run("records interaction facts", func(t *testing.T) {
		f := newEngineFixture(t)
		f.mock.QueueResponse("editor output")

		_, err := f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1", Input: "check", Agents: []string{"Editor"},
		})
		require.NoError(t, err)

		assert.NotEmpty(t, f.memory.Facts("u1", "editor"))
	})
}

func TestEnginePauseResume(t *testing.T) {
	t.Run("resume re-enters at current step with accumulated handoff", func(t *testing.T) {
		f := newEngineFixture(t)
		def := Definition{
			ID: "resumable",
			Steps: []Step{
				{AgentID: "Research Analyst", Name: "Research", RequiredOutputs: []string{"key_findings"}},
				{AgentID: "Writer", Name: "Draft"},
			},
		}

		// Paused mid-run after step one.
		exec := newExecution(def, "u1", "s1", "topic")
		exec.Steps[0].Status = StepCompleted
		exec.Steps[0].Output = "step one output"
		exec.Steps[0].Handoff = map[string]string{"key_findings": "carried forward"}
		exec.CurrentStep = 1
		exec.Status = StatusPaused
		f.engine.mu.Lock()
		f.engine.executions[exec.ID] = exec
		f.engine.mu.Unlock()

		f.mock.QueueResponse("final draft")
		f.engine.Resume(context.Background(), exec.ID)

		snap, ok := f.engine.Execution(exec.ID)
		require.True(t, ok)
		assert.Equal(t, StatusCompleted, snap.Status)
		assert.Equal(t, "final draft", snap.Result)
		assert.Equal(t, StepCompleted, snap.Steps[1].Status)

		reqs := f.mock.Requests()
		require.Len(t, reqs, 1)
		prompt := reqs[0].Messages[len(reqs[0].Messages)-1].Content
		assert.Contains(t, prompt, "Previous Step Output:\nstep one output")
		assert.Contains(t, prompt, "carried forward")
	})

	t.Run("pause and resume are no-ops outside their precondition", func(t *testing.T) {
		f := newEngineFixture(t)
		f.mock.QueueResponse("done")
		res, err := f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1", Input: "x", Agents: []string{"Writer"},
		})
		require.NoError(t, err)

		f.engine.Pause(res.ExecutionID)
		f.engine.Resume(context.Background(), res.ExecutionID)

		exec, _ := f.engine.Execution(res.ExecutionID)
		assert.Equal(t, StatusCompleted, exec.Status)
		assert.Equal(t, 1, f.mock.CallCount())

		// Unknown ids are ignored.
		f.engine.Pause("missing")
		f.engine.Resume(context.Background(), "missing")
	})
}

func TestEngineCancel(t *testing.T) {
	t.Run("cancel fails execution and clears session windows", func(t *testing.T) {
		f := newEngineFixture(t)
		def := Definition{ID: "d", Steps: []Step{{AgentID: "Writer", Name: "Draft"}}}
		exec := newExecution(def, "u1", "s1", "topic")
		exec.Status = StatusRunning
		f.engine.mu.Lock()
		f.engine.executions[exec.ID] = exec
		f.engine.mu.Unlock()

		f.windows.EnsureWindow("s1", "writer", "Writer", "You write.")
		require.NoError(t, f.windows.AppendMessage("s1", "writer", core.UserMessage("hello")))

		f.engine.Cancel(exec.ID)

		snap, _ := f.engine.Execution(exec.ID)
		assert.Equal(t, StatusFailed, snap.Status)
		assert.Equal(t, "Cancelled by user", snap.Error)

		_, err := f.windows.OptimizedMessages("s1", "writer")
		assert.Error(t, err)
	})

	t.Run("cancel is a no-op on terminal executions", func(t *testing.T) {
		f := newEngineFixture(t)
		f.mock.QueueResponse("done")
		res, err := f.engine.Start(context.Background(), StartRequest{
			UserID: "u1", SessionID: "s1", Input: "x", Agents: []string{"Writer"},
		})
		require.NoError(t, err)

		f.engine.Cancel(res.ExecutionID)

		exec, _ := f.engine.Execution(res.ExecutionID)
		assert.Equal(t, StatusCompleted, exec.Status)
		assert.Empty(t, exec.Error)
	})
}

func TestEngineChat(t *testing.T) {
	t.Run("single turn against one agent", func(t *testing.T) {
		f := newEngineFixture(t)
		f.mock.QueueResponse("hello back")

		out, err := f.engine.Chat(context.Background(), "u1", "s1", "writer", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello back", out)
		require.Len(t, f.usage.Records(), 1)
		assert.Equal(t, "direct chat", f.usage.Records()[0].Note)
	})

	t.Run("unknown agent", func(t *testing.T) {
		f := newEngineFixture(t)

		_, err := f.engine.Chat(context.Background(), "u1", "s1", "nobody", "hello")
		require.ErrorIs(t, err, core.ErrAgentNotFound)
		assert.Zero(t, f.mock.CallCount())
	})

	t.Run("chat retains session history across turns", func(t *testing.T) {
		f := newEngineFixture(t)
		f.mock.QueueResponse("first reply", "second reply")

		_, err := f.engine.Chat(context.Background(), "u1", "s1", "Writer", "first question")
		require.NoError(t, err)
		_, err = f.engine.Chat(context.Background(), "u1", "s1", "Writer", "second question")
		require.NoError(t, err)

		reqs := f.mock.Requests()
		require.Len(t, reqs, 2)
		// System prompt + full prior exchange precede the second question.
		assert.GreaterOrEqual(t, len(reqs[1].Messages), 4)
	})
}

func TestEngineStatusEvents(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.Registry().Register(Definition{
		ID: "evented",
		Steps: []Step{
			{AgentID: "Research Analyst", Name: "Research"},
			{AgentID: "Writer", Name: "Draft"},
		},
	}))
	f.mock.QueueResponse("a", "b")

	res, err := f.engine.Start(context.Background(), StartRequest{
		UserID: "u1", SessionID: "s1", Input: "topic", WorkflowID: "evented",
	})
	require.NoError(t, err)

	events := f.status.Events(res.ExecutionID)
	require.NotEmpty(t, events)

	var sawHandoff bool
	for _, ev := range events {
		if _, ok := ev.Metadata["handoff_record"]; ok {
			sawHandoff = true
		}
	}
	assert.True(t, sawHandoff, "expected a handoff record event between steps")
}
