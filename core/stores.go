package core

import "time"

// ContextWindowStore maintains a rolling, token-bounded message window per
// (session, agent) pair. The engines treat optimization (truncation or
// summarization of older turns) as opaque: OptimizedMessages may return fewer
// messages than were appended.
type ContextWindowStore interface {
	// EnsureWindow creates the window for (sessionID, agentKey) if it does
	// not exist yet, seeding it with the agent's system prompt.
	EnsureWindow(sessionID, agentKey, agentName, systemPrompt string)

	// AppendMessage adds a message to the window's history.
	AppendMessage(sessionID, agentKey string, msg Message) error

	// OptimizedMessages returns the window's messages fitted to the token
	// budget, oldest turns dropped first. The system prompt is not included;
	// callers prepend it per model call.
	OptimizedMessages(sessionID, agentKey string) ([]Message, error)

	// ClearSession removes every agent window belonging to the session.
	ClearSession(sessionID string) error
}

// Fact is a single long-term memory entry derived from an agent interaction.
type Fact struct {
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// MemoryStore is the long-term knowledge store scoped per (user, agent) pair.
// Engines call it best-effort: read failures degrade to an empty summary and
// write failures are logged, never propagated.
type MemoryStore interface {
	// BuildContextSummary renders the accumulated facts for (userID,
	// agentKey) as a prompt-ready text block, or "" when nothing is known.
	BuildContextSummary(userID, agentKey string) (string, error)

	// RecordFact appends a fact learned during an interaction.
	RecordFact(userID, agentKey string, fact Fact) error
}

// UsageRecord captures token consumption for one model invocation.
type UsageRecord struct {
	Model            string    `json:"model"`
	TotalTokens      int       `json:"total_tokens"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	AgentKey         string    `json:"agent_key"`
	AgentLabel       string    `json:"agent_label"`
	Note             string    `json:"note,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// UsageLogger records token consumption for cost accounting. Fire-and-forget
// from the engines' perspective: a Record failure never aborts orchestration.
type UsageLogger interface {
	Record(rec UsageRecord) error
}

// Status event levels.
const (
	StatusLevelInfo  = "info"
	StatusLevelWarn  = "warn"
	StatusLevelError = "error"
)

// StatusEvent is a progress/log entry published to the live-status sink,
// tagged with the execution or conversation it belongs to.
type StatusEvent struct {
	ID        string            `json:"id"`
	RefID     string            `json:"ref_id"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewStatusEvent constructs a status event bound to an execution or
// conversation id.
func NewStatusEvent(refID, level, message string) StatusEvent {
	return StatusEvent{
		ID:        NewID(),
		RefID:     refID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// StatusSink receives progress events for live display. Publish is
// append-only and requires no acknowledgement; failures must never abort the
// publishing operation.
type StatusSink interface {
	Publish(ev StatusEvent) error
}
