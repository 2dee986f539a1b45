package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/memory"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/roster"
	"github.com/hupe1980/taskmesh/session"
	"github.com/hupe1980/taskmesh/status"
	"github.com/hupe1980/taskmesh/usage"
)

// skippedStepError is the error text recorded on a step whose agent could not
// be resolved. A missing agent is non-fatal to the execution.
const skippedStepError = "Employee not found"

// Options configures an Engine instance. All service dependencies default to
// in-memory implementations so the engine is immediately usable in tests and
// development.
type Options struct {
	Registry *Registry
	Windows  core.ContextWindowStore
	Memory   core.MemoryStore
	Usage    core.UsageLogger
	Status   core.StatusSink
	Logger   logging.Logger
}

// Engine drives workflow executions from pending to a terminal state, one
// step at a time, performing hand-off extraction between steps. Concurrency
// exists only across independent executions; within one execution the step
// loop is strictly sequential.
type Engine struct {
	roster   *roster.Roster
	model    model.Model
	registry *Registry
	windows  core.ContextWindowStore
	memory   core.MemoryStore
	usage    core.UsageLogger
	status   core.StatusSink
	logger   logging.Logger

	mu         sync.RWMutex
	executions map[string]*Execution
}

// New creates a workflow engine. The roster and model are required; every
// other dependency has an in-memory default.
func New(ros *roster.Roster, mdl model.Model, optFns ...func(o *Options)) *Engine {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Windows == nil {
		opts.Windows = session.NewWindowStore()
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewInMemoryStore()
	}
	if opts.Usage == nil {
		opts.Usage = usage.NewLedger()
	}
	if opts.Status == nil {
		opts.Status = status.NewStream()
	}

	return &Engine{
		roster:     ros,
		model:      mdl,
		registry:   opts.Registry,
		windows:    opts.Windows,
		memory:     opts.Memory,
		usage:      opts.Usage,
		status:     opts.Status,
		logger:     logging.OrNoOp(opts.Logger),
		executions: make(map[string]*Execution),
	}
}

// Registry exposes the definition registry for registration and listing.
func (e *Engine) Registry() *Registry { return e.registry }

// StartRequest selects what to run and for whom. Exactly one of WorkflowID,
// Agents or keyword auto-detection (neither set) resolves the definition.
type StartRequest struct {
	UserID     string
	SessionID  string
	Input      string
	WorkflowID string
	Agents     []string
}

// StartResult is the caller-visible outcome of a workflow run.
type StartResult struct {
	ExecutionID string
	Status      Status
	Result      string
	Error       string
}

// Start resolves a definition, creates and registers an execution and drives
// the step loop to a terminal (or paused) state. Resolution order: explicit
// workflow id, explicit agent list, keyword auto-detection. When none
// resolves, core.ErrNoSuitableWorkflow is returned.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	def, err := e.resolveDefinition(req)
	if err != nil {
		return nil, err
	}

	exec := newExecution(def, req.UserID, req.SessionID, req.Input)
	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.mu.Unlock()

	e.publish(exec.ID, core.StatusLevelInfo, fmt.Sprintf("workflow %q started", def.Name))
	e.logger.Info("workflow started",
		"execution_id", exec.ID,
		"definition_id", def.ID,
		"user_id", req.UserID,
		"session_id", req.SessionID,
	)

	exec.setStatus(StatusRunning)
	e.runSteps(ctx, exec)

	snap := exec.Snapshot()
	return &StartResult{
		ExecutionID: snap.ID,
		Status:      snap.Status,
		Result:      snap.Result,
		Error:       snap.Error,
	}, nil
}

// resolveDefinition applies the selector precedence from StartRequest.
func (e *Engine) resolveDefinition(req StartRequest) (Definition, error) {
	switch {
	case req.WorkflowID != "":
		def, ok := e.registry.Get(req.WorkflowID)
		if !ok {
			return Definition{}, fmt.Errorf("workflow %q: %w", req.WorkflowID, core.ErrNoSuitableWorkflow)
		}
		return def, nil
	case len(req.Agents) > 0:
		return AdHocDefinition(req.Agents), nil
	default:
		def, ok := e.registry.Detect(req.Input)
		if !ok {
			return Definition{}, core.ErrNoSuitableWorkflow
		}
		return def, nil
	}
}

// Execution returns a snapshot of an execution from the in-memory table.
func (e *Engine) Execution(id string) (*Execution, bool) {
	e.mu.RLock()
	exec, ok := e.executions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return exec.Snapshot(), true
}

// Pause flips a running execution to paused. The step loop observes the flag
// between steps; an in-flight model call is not interrupted. No-op when the
// execution is not running.
func (e *Engine) Pause(executionID string) {
	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	if exec.compareAndSetStatus(StatusRunning, StatusPaused) {
		e.publish(executionID, core.StatusLevelInfo, "workflow paused")
	}
}

// Resume flips a paused execution back to running and re-enters the step
// loop at the recorded current step. No-op when the execution is not paused.
func (e *Engine) Resume(ctx context.Context, executionID string) {
	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	if !exec.compareAndSetStatus(StatusPaused, StatusRunning) {
		return
	}
	e.publish(executionID, core.StatusLevelInfo, "workflow resumed")
	e.runSteps(ctx, exec)
}

// Cancel marks an execution failed with reason "Cancelled by user" and clears
// the session's short-term context windows for every participant. Terminal
// executions are left untouched.
func (e *Engine) Cancel(executionID string) {
	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	if exec.statusIs(StatusCompleted) || exec.statusIs(StatusFailed) {
		return
	}
	exec.fail("Cancelled by user")
	if err := e.windows.ClearSession(exec.SessionID); err != nil {
		e.logger.Warn("failed to clear session windows on cancel",
			"execution_id", executionID, "error", err)
	}
	e.publish(executionID, core.StatusLevelWarn, "workflow cancelled by user")
}

// runSteps drives the step loop from the execution's current step. It exits
// early when the execution is paused (without failing it) and aborts the
// remaining steps on the first step-level error.
func (e *Engine) runSteps(ctx context.Context, exec *Execution) {
	def := exec.def
	handoff := make(map[string]string)
	prevOutput := ""
	lastOutput := ""

	// Rebuild accumulated state when re-entering after a pause.
	for i := 0; i < exec.CurrentStep && i < len(exec.Steps); i++ {
		step := exec.Steps[i]
		if step.Status == StepCompleted {
			mergeHandoff(handoff, step.Handoff)
			prevOutput = step.Output
			lastOutput = step.Output
		}
	}

	for i := exec.CurrentStep; i < len(def.Steps); i++ {
		if exec.statusIs(StatusPaused) {
			return // resumable; not a failure
		}
		if !exec.statusIs(StatusRunning) {
			return // cancelled while between steps
		}

		stepDef := def.Steps[i]
		agent, ok := e.roster.Resolve(stepDef.AgentID)
		if !ok {
			e.skipStep(exec, i, stepDef)
			exec.mu.Lock()
			exec.CurrentStep = i + 1
			exec.mu.Unlock()
			continue
		}

		exec.setStepStatus(i, StepRunning)

		output, tokens, err := e.executeStep(ctx, exec, stepDef, agent, i, prevOutput, handoff)
		if err != nil {
			e.failStep(exec, i, err)
			return
		}

		stepHandoff := ExtractHandoff(output, stepDef.RequiredOutputs)
		mergeHandoff(handoff, stepHandoff)

		exec.mu.Lock()
		step := exec.Steps[i]
		step.Output = output
		step.Handoff = stepHandoff
		step.Tokens = tokens
		exec.CurrentStep = i + 1
		exec.mu.Unlock()
		exec.setStepStatus(i, StepCompleted)

		e.publish(exec.ID, core.StatusLevelInfo,
			fmt.Sprintf("step %d (%s) completed", i+1, stepDef.Name))

		if i < len(def.Steps)-1 {
			record := buildRecord(agent.Name, def.Steps[i+1].AgentID, output, handoff, exec.Input, def.Steps[i+1].Instructions)
			e.logHandoffRecord(exec.ID, record)
		}

		e.recordFactLearned(exec, agent, stepDef, output)

		prevOutput = output
		lastOutput = output
	}

	if lastOutput == "" {
		// Every step was skipped; fall back to the original input.
		lastOutput = exec.Input
	}
	exec.complete(lastOutput)
	e.publish(exec.ID, core.StatusLevelInfo, "workflow completed")
	e.logger.Info("workflow completed", "execution_id", exec.ID)
}

// skipStep marks a step skipped after a roster miss and emits a warning.
func (e *Engine) skipStep(exec *Execution, index int, stepDef Step) {
	exec.mu.Lock()
	exec.Steps[index].Error = skippedStepError
	exec.mu.Unlock()
	exec.setStepStatus(index, StepSkipped)
	e.publish(exec.ID, core.StatusLevelWarn,
		fmt.Sprintf("step %d (%s): agent %q not found, skipping", index+1, stepDef.Name, stepDef.AgentID))
	e.logger.Warn("workflow step skipped",
		"execution_id", exec.ID, "step", index, "agent", stepDef.AgentID)
}

// failStep records a step-level error and fails the whole execution.
func (e *Engine) failStep(exec *Execution, index int, err error) {
	exec.mu.Lock()
	exec.Steps[index].Error = err.Error()
	exec.mu.Unlock()
	exec.setStepStatus(index, StepFailed)
	exec.fail(err.Error())
	e.publish(exec.ID, core.StatusLevelError,
		fmt.Sprintf("step %d failed: %v", index+1, err))
	e.logger.Error("workflow step failed",
		"execution_id", exec.ID, "step", index, "error", err.Error())
}

// executeStep builds the step input, invokes the model through the agent's
// context window and records usage. Returns the raw output and token count.
func (e *Engine) executeStep(
	ctx context.Context,
	exec *Execution,
	stepDef Step,
	agent core.AgentDefinition,
	index int,
	prevOutput string,
	handoff map[string]string,
) (string, int, error) {
	input := e.buildStepInput(exec, stepDef, agent, index, prevOutput, handoff)

	exec.mu.Lock()
	exec.Steps[index].Input = input
	exec.mu.Unlock()

	output, tokens, err := e.invokeAgent(ctx, exec.UserID, exec.SessionID, agent, input,
		fmt.Sprintf("workflow step %d", index+1))
	if err != nil {
		return "", 0, err
	}
	return output, tokens, nil
}

// buildStepInput concatenates, in order: long-term memory context, the
// request block (original request plus previous output and hand-off data for
// non-first steps), the step's instructions and the required output listing.
func (e *Engine) buildStepInput(
	exec *Execution,
	stepDef Step,
	agent core.AgentDefinition,
	index int,
	prevOutput string,
	handoff map[string]string,
) string {
	var sb strings.Builder

	if summary, err := e.memory.BuildContextSummary(exec.UserID, agent.Key()); err != nil {
		e.logger.Warn("memory summary unavailable",
			"execution_id", exec.ID, "agent", agent.Key(), "error", err)
	} else if summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n")
	}

	if index == 0 {
		sb.WriteString("User Request:\n")
		sb.WriteString(exec.Input)
		sb.WriteString("\n")
	} else {
		sb.WriteString("Original Request:\n")
		sb.WriteString(exec.Input)
		sb.WriteString("\n\nPrevious Step Output:\n")
		sb.WriteString(prevOutput)
		sb.WriteString("\n")
		if len(handoff) > 0 {
			if data, err := json.Marshal(handoff); err == nil {
				sb.WriteString("\nHandoff Data:\n")
				sb.Write(data)
				sb.WriteString("\n")
			}
		}
	}

	if stepDef.Instructions != "" {
		sb.WriteString("\nInstructions:\n")
		sb.WriteString(stepDef.Instructions)
		sb.WriteString("\n")
	}
	if len(stepDef.RequiredOutputs) > 0 {
		sb.WriteString("\nInclude the following outputs, each on its own line as \"name: value\": ")
		sb.WriteString(strings.Join(stepDef.RequiredOutputs, ", "))
		sb.WriteString("\n")
	}

	return sb.String()
}

// invokeAgent performs one model call for an agent through its session
// context window, logging usage best-effort. Shared by workflow steps and
// direct chat.
func (e *Engine) invokeAgent(
	ctx context.Context,
	userID, sessionID string,
	agent core.AgentDefinition,
	input, label string,
) (string, int, error) {
	agentKey := agent.Key()
	e.windows.EnsureWindow(sessionID, agentKey, agent.Name, agent.SystemPrompt)
	if err := e.windows.AppendMessage(sessionID, agentKey, core.UserMessage(input)); err != nil {
		return "", 0, fmt.Errorf("append to context window: %w", err)
	}

	history, err := e.windows.OptimizedMessages(sessionID, agentKey)
	if err != nil {
		return "", 0, fmt.Errorf("read context window: %w", err)
	}

	messages := make([]core.Message, 0, len(history)+1)
	messages = append(messages, core.SystemMessage(agent.SystemPrompt))
	messages = append(messages, history...)

	resp, err := e.model.Generate(ctx, model.Request{
		Provider:  agent.Provider,
		Model:     agent.Model,
		UserID:    userID,
		SessionID: sessionID,
		Messages:  messages,
	})
	if err != nil {
		return "", 0, fmt.Errorf("agent %s: %w", agent.Name, err)
	}

	tokens := 0
	rec := core.UsageRecord{
		Model:      resp.Model,
		UserID:     userID,
		SessionID:  sessionID,
		AgentKey:   agentKey,
		AgentLabel: agent.Name,
		Note:       label,
	}
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
		rec.TotalTokens = resp.Usage.TotalTokens
		rec.PromptTokens = resp.Usage.PromptTokens
		rec.CompletionTokens = resp.Usage.CompletionTokens
	}
	if err := e.usage.Record(rec); err != nil {
		e.logger.Warn("usage record failed", "agent", agentKey, "error", err)
	}

	if err := e.windows.AppendMessage(sessionID, agentKey, core.AssistantMessage(resp.Content)); err != nil {
		e.logger.Warn("failed to append response to context window",
			"agent", agentKey, "error", err)
	}

	return resp.Content, tokens, nil
}

// recordFactLearned writes one derived fact to long-term memory, best-effort.
func (e *Engine) recordFactLearned(exec *Execution, agent core.AgentDefinition, stepDef Step, output string) {
	fact := core.Fact{
		Category:   "interaction",
		Key:        fmt.Sprintf("%s-%d", agent.Key(), time.Now().UnixMilli()),
		Value:      truncate(output, recordValueLimit),
		Confidence: 0.5,
		Source:     fmt.Sprintf("workflow %s step %q", exec.DefinitionID, stepDef.Name),
	}
	if err := e.memory.RecordFact(exec.UserID, agent.Key(), fact); err != nil {
		e.logger.Warn("failed to record fact",
			"execution_id", exec.ID, "agent", agent.Key(), "error", err)
	}
}

// logHandoffRecord publishes the informational hand-off record.
func (e *Engine) logHandoffRecord(executionID string, record Record) {
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	ev := core.NewStatusEvent(executionID, core.StatusLevelInfo,
		fmt.Sprintf("handoff from %s to %s", record.FromAgent, record.ToAgent))
	ev.Metadata = map[string]string{"handoff_record": string(data)}
	if err := e.status.Publish(ev); err != nil {
		e.logger.Warn("status publish failed", "execution_id", executionID, "error", err)
	}
}

// publish sends a status event, swallowing sink failures.
func (e *Engine) publish(refID, level, message string) {
	if err := e.status.Publish(core.NewStatusEvent(refID, level, message)); err != nil {
		e.logger.Warn("status publish failed", "ref_id", refID, "error", err)
	}
}

// Chat bypasses workflow structure entirely: a single request/response turn
// against one named agent, using the same context-window, memory and
// token-logging path as a workflow step of size one. A roster miss is fatal
// here (core.ErrAgentNotFound).
func (e *Engine) Chat(ctx context.Context, userID, sessionID, agentName, message string) (string, error) {
	agent, ok := e.roster.Resolve(agentName)
	if !ok {
		return "", fmt.Errorf("chat with %q: %w", agentName, core.ErrAgentNotFound)
	}

	var sb strings.Builder
	if summary, err := e.memory.BuildContextSummary(userID, agent.Key()); err != nil {
		e.logger.Warn("memory summary unavailable", "agent", agent.Key(), "error", err)
	} else if summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n")
	}
	sb.WriteString(message)

	output, _, err := e.invokeAgent(ctx, userID, sessionID, agent, sb.String(), "direct chat")
	if err != nil {
		return "", err
	}

	fact := core.Fact{
		Category:   "interaction",
		Key:        fmt.Sprintf("%s-%d", agent.Key(), time.Now().UnixMilli()),
		Value:      truncate(output, recordValueLimit),
		Confidence: 0.5,
		Source:     "direct chat",
	}
	if err := e.memory.RecordFact(userID, agent.Key(), fact); err != nil {
		e.logger.Warn("failed to record fact", "agent", agent.Key(), "error", err)
	}

	return output, nil
}
