package workflow

import (
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// Status is the lifecycle state of an execution.
type Status string

// Execution statuses.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepStatus is the lifecycle state of a single step execution.
type StepStatus string

// Step statuses. Transitions are monotonic: a step never regresses to an
// earlier status.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// stepStatusRank orders statuses for the monotonicity check. Terminal
// statuses share the highest rank so none can replace another.
var stepStatusRank = map[StepStatus]int{
	StepPending:   0,
	StepRunning:   1,
	StepCompleted: 2,
	StepFailed:    2,
	StepSkipped:   2,
}

// StepExecution is the per-step mirror of a definition Step. Exactly one
// exists per definition step, created when the execution is created.
type StepExecution struct {
	Index       int               `json:"index"`
	AgentID     string            `json:"agent_id"`
	AgentName   string            `json:"agent_name"`
	Status      StepStatus        `json:"status"`
	Input       string            `json:"input,omitempty"`
	Output      string            `json:"output,omitempty"`
	Handoff     map[string]string `json:"handoff,omitempty"`
	Tokens      int               `json:"tokens"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at,omitzero"`
	CompletedAt time.Time         `json:"completed_at,omitzero"`
}

// Execution is one instantiation of a definition for a (session, user) pair.
// It is mutated only by the engine driving it and retained in the engine's
// in-memory table for the process lifetime.
type Execution struct {
	mu sync.Mutex

	ID           string           `json:"id"`
	DefinitionID string           `json:"definition_id"`
	UserID       string           `json:"user_id"`
	SessionID    string           `json:"session_id"`
	Status       Status           `json:"status"`
	CurrentStep  int              `json:"current_step"`
	Steps        []*StepExecution `json:"steps"`
	Input        string           `json:"input"`
	Result       string           `json:"result,omitempty"`
	Error        string           `json:"error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at,omitzero"`

	// def is the resolved definition, kept so Resume can re-enter the step
	// loop without a registry round trip (ad-hoc definitions are not
	// registered).
	def Definition
}

// newExecution creates a pending execution with one pending StepExecution per
// definition step.
func newExecution(def Definition, userID, sessionID, input string) *Execution {
	steps := make([]*StepExecution, len(def.Steps))
	for i, s := range def.Steps {
		steps[i] = &StepExecution{
			Index:     i,
			AgentID:   s.AgentID,
			AgentName: s.Name,
			Status:    StepPending,
		}
	}
	return &Execution{
		ID:           core.NewID(),
		DefinitionID: def.ID,
		UserID:       userID,
		SessionID:    sessionID,
		Status:       StatusPending,
		Steps:        steps,
		Input:        input,
		StartedAt:    time.Now().UTC(),
		def:          def,
	}
}

// setStatus updates the execution status under lock.
func (e *Execution) setStatus(s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Status = s
}

// statusIs reports whether the execution currently has the given status.
func (e *Execution) statusIs(s Status) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Status == s
}

// compareAndSetStatus transitions from->to atomically, reporting success.
// Used by pause/resume which are no-ops outside their precondition state.
func (e *Execution) compareAndSetStatus(from, to Status) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Status != from {
		return false
	}
	e.Status = to
	return true
}

// setStepStatus applies a monotonic step status transition, recording
// start/completion timestamps. Regressions are ignored.
func (e *Execution) setStepStatus(index int, status StepStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	step := e.Steps[index]
	if stepStatusRank[status] < stepStatusRank[step.Status] {
		return
	}
	if stepStatusRank[status] == stepStatusRank[step.Status] && status != step.Status {
		return // terminal statuses never replace one another
	}
	step.Status = status
	now := time.Now().UTC()
	switch status {
	case StepRunning:
		step.StartedAt = now
	case StepCompleted, StepFailed, StepSkipped:
		step.CompletedAt = now
	}
}

// complete marks the execution terminal with a result.
func (e *Execution) complete(result string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Status = StatusCompleted
	e.Result = result
	e.CompletedAt = time.Now().UTC()
}

// fail marks the execution terminal with an error.
func (e *Execution) fail(errText string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Status = StatusFailed
	e.Error = errText
	e.CompletedAt = time.Now().UTC()
}

// Snapshot returns a deep copy of the execution safe for callers to inspect
// while the engine continues to drive the original.
func (e *Execution) Snapshot() *Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	steps := make([]*StepExecution, len(e.Steps))
	for i, s := range e.Steps {
		cp := *s
		if s.Handoff != nil {
			cp.Handoff = make(map[string]string, len(s.Handoff))
			for k, v := range s.Handoff {
				cp.Handoff[k] = v
			}
		}
		steps[i] = &cp
	}
	return &Execution{
		ID:           e.ID,
		DefinitionID: e.DefinitionID,
		UserID:       e.UserID,
		SessionID:    e.SessionID,
		Status:       e.Status,
		CurrentStep:  e.CurrentStep,
		Steps:        steps,
		Input:        e.Input,
		Result:       e.Result,
		Error:        e.Error,
		StartedAt:    e.StartedAt,
		CompletedAt:  e.CompletedAt,
	}
}
