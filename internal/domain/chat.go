package domain

// Role identifies who authored a chat message. It never changes once the
// message has been appended to a session.
type Role string

const (
	RoleUser         Role = "user"
	RoleAssistant    Role = "assistant"
	RoleEmailPreview Role = "email-preview"
	RoleSystem       Role = "system"
)

// ChatMessage is the provider-agnostic chat message shape used by the handler,
// the session transcript and the LLM integrations.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
