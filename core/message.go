package core

// Conversation roles used across the engines. Model adapters understand
// system/user/assistant; transcript messages additionally use agent and
// supervisor to record who authored a turn.
const (
	RoleSystem     = "system"
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
)

// Message is a role-tagged chat message, the unit of exchange with model
// providers and context window stores.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage is a convenience constructor for a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage is a convenience constructor for a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage is a convenience constructor for an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
