// Package taskmesh provides a high-level façade over the workflow and
// conversation engines and their service abstractions (context windows,
// long-term memory, usage accounting & live status). Most applications
// interact with this package by:
//  1. Creating a TaskMesh via New() with an agent roster and a model
//     (optionally overriding default in-memory services)
//  2. Registering additional workflow definitions
//  3. Running workflows (StartWorkflow), discussions (StartConversation) or
//     single-agent chats (Chat)
//
// The façade delegates orchestration to workflow.Engine and
// conversation.Engine while keeping setup ergonomics concise. All defaults
// are safe for local development and testing; production deployments supply
// durable store implementations and a structured logger.
package taskmesh

import (
	"context"

	"github.com/hupe1980/taskmesh/conversation"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/memory"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/roster"
	"github.com/hupe1980/taskmesh/session"
	"github.com/hupe1980/taskmesh/status"
	"github.com/hupe1980/taskmesh/usage"
	"github.com/hupe1980/taskmesh/workflow"
)

// Options configures the TaskMesh instance.
type Options struct {
	// Workflows is the definition registry; defaults to one pre-loaded with
	// the built-in definitions.
	Workflows *workflow.Registry

	// Stores (default to in-memory implementations if not provided). Both
	// engines share whichever instances end up here.
	Windows core.ContextWindowStore
	Memory  core.MemoryStore
	Usage   core.UsageLogger
	Status  core.StatusSink

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// TaskMesh is the high-level façade aggregating both engines and their shared
// services.
type TaskMesh struct {
	opts          Options
	workflows     *workflow.Engine
	conversations *conversation.Engine
}

// New creates a TaskMesh instance with optional overrides. Any unset service
// is initialized with an in-memory implementation shared by both engines.
func New(ros *roster.Roster, mdl model.Model, optFns ...func(o *Options)) *TaskMesh {
	opts := Options{
		Workflows: workflow.NewRegistry(),
		Windows:   session.NewWindowStore(),
		Memory:    memory.NewInMemoryStore(),
		Usage:     usage.NewLedger(),
		Status:    status.NewStream(),
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	wf := workflow.New(ros, mdl, func(o *workflow.Options) {
		o.Registry = opts.Workflows
		o.Windows = opts.Windows
		o.Memory = opts.Memory
		o.Usage = opts.Usage
		o.Status = opts.Status
		o.Logger = opts.Logger
	})
	conv := conversation.New(ros, mdl, func(o *conversation.Options) {
		o.Usage = opts.Usage
		o.Status = opts.Status
		o.Logger = opts.Logger
	})

	return &TaskMesh{opts: opts, workflows: wf, conversations: conv}
}

// RegisterWorkflow adds a workflow definition to the shared registry.
func (m *TaskMesh) RegisterWorkflow(def workflow.Definition) error {
	return m.workflows.Registry().Register(def)
}

// Workflows lists all registered workflow definitions in registration order.
func (m *TaskMesh) Workflows() []workflow.Definition {
	return m.workflows.Registry().List()
}

// StartWorkflow runs a workflow execution to a terminal (or paused) state.
func (m *TaskMesh) StartWorkflow(ctx context.Context, req workflow.StartRequest) (*workflow.StartResult, error) {
	return m.workflows.Start(ctx, req)
}

// WorkflowExecution returns a snapshot of a known execution.
func (m *TaskMesh) WorkflowExecution(id string) (*workflow.Execution, bool) {
	return m.workflows.Execution(id)
}

// PauseWorkflow pauses a running execution between steps.
func (m *TaskMesh) PauseWorkflow(id string) { m.workflows.Pause(id) }

// ResumeWorkflow resumes a paused execution at its recorded step.
func (m *TaskMesh) ResumeWorkflow(ctx context.Context, id string) { m.workflows.Resume(ctx, id) }

// CancelWorkflow cancels an execution and clears its session context windows.
func (m *TaskMesh) CancelWorkflow(id string) { m.workflows.Cancel(id) }

// Chat performs a single request/response turn against one named agent.
func (m *TaskMesh) Chat(ctx context.Context, userID, sessionID, agentName, message string) (string, error) {
	return m.workflows.Chat(ctx, userID, sessionID, agentName, message)
}

// StartConversation runs a supervised multi-agent discussion to completion.
func (m *TaskMesh) StartConversation(ctx context.Context, req conversation.StartRequest) (*conversation.Result, error) {
	return m.conversations.Start(ctx, req)
}

// WorkflowEngine exposes the underlying workflow engine for advanced use.
func (m *TaskMesh) WorkflowEngine() *workflow.Engine { return m.workflows }

// ConversationEngine exposes the underlying conversation engine for advanced
// use.
func (m *TaskMesh) ConversationEngine() *conversation.Engine { return m.conversations }
