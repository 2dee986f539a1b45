package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/roster"
	"github.com/hupe1980/taskmesh/similarity"
	"github.com/hupe1980/taskmesh/status"
	"github.com/hupe1980/taskmesh/usage"
)

const (
	// maxTurns caps the number of agent turns in one conversation.
	maxTurns = 10
	// loopWindow is how many trailing transcript messages loop detection
	// inspects. Detection is skipped while fewer messages exist.
	loopWindow = 4
	// loopThreshold is the similarity above which two adjacent messages count
	// as a repetition loop.
	loopThreshold = 0.85
	// recentContext is how many trailing transcript messages each turn prompt
	// includes.
	recentContext = 5
)

// completionKeywords end the turn loop when present (case-insensitive) in the
// latest transcript message.
var completionKeywords = []string{"DONE", "COMPLETE", "FINAL ANSWER"}

// refusalMessage is returned when input sanitation blocks the query. The
// conversation ends without a single model call.
const refusalMessage = "I can't process that request. Please rephrase it without instructions directed at the system."

const supervisorName = "Supervisor"

// supervisorSystemPrompt is the fixed persona of the transient coordination
// agent. It is never persisted and carries no tools.
const supervisorSystemPrompt = "You are a neutral discussion supervisor. You coordinate a team of specialist agents: you outline a brief plan for how they should tackle the user's request, and at the end you synthesize their contributions into one comprehensive answer. You never answer on their behalf during the discussion."

// Message is one transcript entry: who spoke, in which role, and when.
type Message struct {
	Role      string    `json:"role"`
	AgentName string    `json:"agent_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata summarizes how a conversation ran.
type Metadata struct {
	TurnCount        int           `json:"turn_count"`
	ParticipantCount int           `json:"participant_count"`
	Duration         time.Duration `json:"duration"`
	WasInterrupted   bool          `json:"was_interrupted"`
	LoopDetected     bool          `json:"loop_detected"`
}

// Result is the caller-visible outcome of a conversation. On orchestration
// failure Success is false, FinalAnswer carries the wrapped error text and
// Transcript holds everything accumulated up to the failure.
type Result struct {
	ConversationID string    `json:"conversation_id"`
	Success        bool      `json:"success"`
	FinalAnswer    string    `json:"final_answer"`
	Transcript     []Message `json:"transcript"`
	Metadata       Metadata  `json:"metadata"`
}

// Options configures a conversation Engine. Service dependencies default to
// in-memory implementations.
type Options struct {
	Usage  core.UsageLogger
	Status core.StatusSink
	Logger logging.Logger
}

// Engine drives multi-agent discussions. Within one conversation turns are
// strictly sequential; concurrency exists only across independent
// conversations, which share the engine's live table and nothing else.
type Engine struct {
	roster *roster.Roster
	model  model.Model
	usage  core.UsageLogger
	status core.StatusSink
	logger logging.Logger

	mu     sync.Mutex
	active map[string]time.Time
}

// New creates a conversation engine. The roster and model are required.
func New(ros *roster.Roster, mdl model.Model, optFns ...func(o *Options)) *Engine {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Usage == nil {
		opts.Usage = usage.NewLedger()
	}
	if opts.Status == nil {
		opts.Status = status.NewStream()
	}

	return &Engine{
		roster: ros,
		model:  mdl,
		usage:  opts.Usage,
		status: opts.Status,
		logger: logging.OrNoOp(opts.Logger),
		active: make(map[string]time.Time),
	}
}

// StartRequest describes a conversation to run.
type StartRequest struct {
	UserID       string
	SessionID    string
	Query        string
	Participants []string
}

// ActiveCount reports how many conversations are currently in flight.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Start runs a conversation to completion and returns its result. Participant
// names must resolve against the roster; a miss fails fast before any model
// call. Orchestration errors after the conversation begins are folded into
// the Result rather than returned, so the partial transcript survives.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*Result, error) {
	if len(req.Participants) == 0 {
		return nil, fmt.Errorf("conversation requires at least one participant")
	}

	participants := make([]core.AgentDefinition, len(req.Participants))
	for i, name := range req.Participants {
		agent, ok := e.roster.Resolve(name)
		if !ok {
			return nil, fmt.Errorf("participant %q: %w", name, core.ErrAgentNotFound)
		}
		participants[i] = agent
	}

	convID := core.NewID()
	started := time.Now()
	e.mu.Lock()
	e.active[convID] = started
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, convID)
		e.mu.Unlock()
	}()

	e.publish(convID, core.StatusLevelInfo,
		fmt.Sprintf("conversation started with %d participant(s)", len(participants)))

	sanitized := SanitizeQuery(req.Query)
	if sanitized.Blocked {
		e.publish(convID, core.StatusLevelWarn, "query blocked by input sanitation")
		e.logger.Warn("conversation query blocked",
			"conversation_id", convID, "user_id", req.UserID)
		return &Result{
			ConversationID: convID,
			Success:        true,
			FinalAnswer:    refusalMessage,
			Metadata: Metadata{
				ParticipantCount: len(participants),
				Duration:         time.Since(started),
				WasInterrupted:   true,
			},
		}, nil
	}

	if len(participants) == 1 {
		return e.runSingle(ctx, convID, req, participants[0], sanitized.Sanitized, started)
	}
	return e.runDiscussion(ctx, convID, req, participants, sanitized.Sanitized, started)
}

// runSingle short-circuits a one-participant conversation to a single model
// call. No supervisor, no turn loop.
func (e *Engine) runSingle(
	ctx context.Context,
	convID string,
	req StartRequest,
	agent core.AgentDefinition,
	query string,
	started time.Time,
) (*Result, error) {
	transcript := []Message{userMessage(query)}

	prompt := SandwichPrompt("Answer the user's request directly and completely.", query)
	answer, err := e.generate(ctx, convID, req, agent.SystemPrompt, prompt, agent, "single response")
	if err != nil {
		return e.failedResult(convID, transcript, 0, 1, started, err), nil
	}
	answer = ValidateOutput(answer)
	transcript = append(transcript, agentMessage(agent.Name, answer))

	e.publish(convID, core.StatusLevelInfo, "conversation completed")
	return &Result{
		ConversationID: convID,
		Success:        true,
		FinalAnswer:    answer,
		Transcript:     transcript,
		Metadata: Metadata{
			ParticipantCount: 1,
			Duration:         time.Since(started),
		},
	}, nil
}

// runDiscussion drives the supervised multi-party turn loop.
func (e *Engine) runDiscussion(
	ctx context.Context,
	convID string,
	req StartRequest,
	participants []core.AgentDefinition,
	query string,
	started time.Time,
) (*Result, error) {
	supervisor := core.AgentDefinition{Name: supervisorName, SystemPrompt: supervisorSystemPrompt}
	transcript := []Message{userMessage(query)}

	meta := Metadata{ParticipantCount: len(participants)}
	fail := func(err error) (*Result, error) {
		r := e.failedResult(convID, transcript, meta.TurnCount, len(participants), started, err)
		r.Metadata.LoopDetected = meta.LoopDetected
		return r, nil
	}

	plan, err := e.generate(ctx, convID, req, supervisorSystemPrompt,
		planPrompt(query, participants), supervisor, "coordination plan")
	if err != nil {
		return fail(err)
	}
	transcript = append(transcript, supervisorMessage(plan))

	// Stable participant index for round-robin; display names play no part in
	// turn ordering.
	nextIdx := 0

	for meta.TurnCount < maxTurns {
		latest := transcript[len(transcript)-1]
		if containsCompletionKeyword(latest.Content) {
			e.publish(convID, core.StatusLevelInfo, "completion signal received")
			break
		}

		if detectLoop(transcript) {
			meta.LoopDetected = true
			transcript = append(transcript, supervisorMessage(
				"The discussion is repeating itself. I will synthesize a final answer from what has been said."))
			e.publish(convID, core.StatusLevelWarn, "repetition loop detected")
			break
		}

		agent := participants[nextIdx]
		prompt := turnPrompt(query, transcript)
		label := fmt.Sprintf("turn %d", meta.TurnCount+1)

		reply, err := e.generate(ctx, convID, req, agent.SystemPrompt, prompt, agent, label)
		if err != nil {
			return fail(err)
		}
		reply = ValidateOutput(reply)
		transcript = append(transcript, agentMessage(agent.Name, reply))
		meta.TurnCount++
		nextIdx = (nextIdx + 1) % len(participants)

		e.publish(convID, core.StatusLevelInfo,
			fmt.Sprintf("%s completed %s", agent.Name, label))
	}

	final, err := e.generate(ctx, convID, req, supervisorSystemPrompt,
		synthesisPrompt(query, transcript), supervisor, "synthesis")
	if err != nil {
		return fail(err)
	}
	transcript = append(transcript, supervisorMessage(final))

	meta.Duration = time.Since(started)
	e.publish(convID, core.StatusLevelInfo,
		fmt.Sprintf("conversation completed after %d turn(s)", meta.TurnCount))
	e.logger.Info("conversation completed",
		"conversation_id", convID,
		"turns", meta.TurnCount,
		"loop_detected", meta.LoopDetected,
	)

	return &Result{
		ConversationID: convID,
		Success:        true,
		FinalAnswer:    final,
		Transcript:     transcript,
		Metadata:       meta,
	}, nil
}

// detectLoop reports whether any adjacent pair within the trailing loopWindow
// messages exceeds the similarity threshold. Requires at least loopWindow
// messages.
func detectLoop(transcript []Message) bool {
	if len(transcript) < loopWindow {
		return false
	}
	recent := transcript[len(transcript)-loopWindow:]
	for i := 1; i < len(recent); i++ {
		if similarity.Ratio(recent[i-1].Content, recent[i].Content) > loopThreshold {
			return true
		}
	}
	return false
}

// containsCompletionKeyword reports whether text carries an explicit
// end-of-discussion signal.
func containsCompletionKeyword(text string) bool {
	upper := strings.ToUpper(text)
	for _, kw := range completionKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// planPrompt asks the supervisor for a short coordination plan.
func planPrompt(query string, participants []core.AgentDefinition) string {
	var sb strings.Builder
	sb.WriteString("A user asked:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nThe following specialists will discuss it:\n")
	for _, p := range participants {
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", p.Name, p.Role))
	}
	sb.WriteString("\nOutline in 2-3 sentences how the team should divide this up. Do not answer the question yourself.")
	return sb.String()
}

// turnPrompt builds one participant's prompt: the original query plus the
// last few transcript messages, speaker-labeled, wrapped in the sandwich
// defense.
func turnPrompt(query string, transcript []Message) string {
	var sb strings.Builder
	sb.WriteString("Original request:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nRecent discussion:\n")

	recent := transcript
	if len(recent) > recentContext {
		recent = recent[len(recent)-recentContext:]
	}
	for _, msg := range recent {
		sb.WriteString(fmt.Sprintf("%s: %s\n", msg.AgentName, msg.Content))
	}

	return SandwichPrompt(
		"Contribute your expertise to the discussion below. Be concise (2-3 sentences). End your message with DONE when you believe the discussion is complete.",
		sb.String(),
	)
}

// synthesisPrompt asks the supervisor for the final answer, built from
// agent-authored messages only.
func synthesisPrompt(query string, transcript []Message) string {
	var sb strings.Builder
	sb.WriteString("The user asked:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nThe specialists contributed:\n")
	for _, msg := range transcript {
		if msg.Role != core.RoleAgent {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", msg.AgentName, msg.Content))
	}
	sb.WriteString("\nSynthesize one comprehensive final answer for the user from these contributions.")
	return sb.String()
}

// generate performs one model call on behalf of an agent and records usage.
func (e *Engine) generate(
	ctx context.Context,
	convID string,
	req StartRequest,
	systemPrompt, prompt string,
	agent core.AgentDefinition,
	label string,
) (string, error) {
	resp, err := e.model.Generate(ctx, model.Request{
		Provider:  agent.Provider,
		Model:     agent.Model,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Messages: []core.Message{
			core.SystemMessage(systemPrompt),
			core.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", agent.Name, err)
	}

	rec := core.UsageRecord{
		Model:      resp.Model,
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		AgentKey:   agent.Key(),
		AgentLabel: agent.Name,
		Note:       "conversation " + label,
	}
	if resp.Usage != nil {
		rec.TotalTokens = resp.Usage.TotalTokens
		rec.PromptTokens = resp.Usage.PromptTokens
		rec.CompletionTokens = resp.Usage.CompletionTokens
	}
	if err := e.usage.Record(rec); err != nil {
		e.logger.Warn("usage record failed",
			"conversation_id", convID, "agent", agent.Key(), "error", err)
	}

	return resp.Content, nil
}

// failedResult folds an orchestration error into the result contract,
// preserving the partial transcript.
func (e *Engine) failedResult(
	convID string,
	transcript []Message,
	turns, participantCount int,
	started time.Time,
	err error,
) *Result {
	e.publish(convID, core.StatusLevelError, fmt.Sprintf("conversation failed: %v", err))
	e.logger.Error("conversation failed", "conversation_id", convID, "error", err.Error())
	return &Result{
		ConversationID: convID,
		Success:        false,
		FinalAnswer:    fmt.Sprintf("The conversation could not be completed: %v", err),
		Transcript:     transcript,
		Metadata: Metadata{
			TurnCount:        turns,
			ParticipantCount: participantCount,
			Duration:         time.Since(started),
			WasInterrupted:   true,
		},
	}
}

// publish sends a status event, swallowing sink failures.
func (e *Engine) publish(refID, level, message string) {
	if err := e.status.Publish(core.NewStatusEvent(refID, level, message)); err != nil {
		e.logger.Warn("status publish failed", "ref_id", refID, "error", err)
	}
}

func userMessage(content string) Message {
	return Message{Role: core.RoleUser, AgentName: "User", Content: content, Timestamp: time.Now().UTC()}
}

func agentMessage(name, content string) Message {
	return Message{Role: core.RoleAgent, AgentName: name, Content: content, Timestamp: time.Now().UTC()}
}

func supervisorMessage(content string) Message {
	return Message{Role: core.RoleSupervisor, AgentName: supervisorName, Content: content, Timestamp: time.Now().UTC()}
}
