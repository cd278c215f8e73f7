package domain

import "time"

// EmailPhase is the state of the outbound recommendation email for a session.
type EmailPhase string

const (
	PhaseIdle               EmailPhase = "idle"
	PhaseFormOpen           EmailPhase = "form_open"
	PhaseGenerating         EmailPhase = "generating"
	PhasePreviewing         EmailPhase = "previewing"
	PhaseManualEditing      EmailPhase = "manual_editing"
	PhaseInstructionEditing EmailPhase = "instruction_editing"
	PhaseApproved           EmailPhase = "approved"
)

// PendingAction names the outbound request a session is waiting on.
type PendingAction string

const (
	PendingNone     PendingAction = ""
	PendingGenerate PendingAction = "generate"
	PendingRevise   PendingAction = "revise"
	PendingSend     PendingAction = "send"
)

// EmailForm holds the recipient and sender details of a draft.
type EmailForm struct {
	RecipientEmail string `json:"email"`
	AgentName      string `json:"agentName"`
	ClientName     string `json:"clientName"`
	AgentNote      string `json:"agentNote,omitempty"`
}

// EmailDraftSession is the single outbound email a conversation may be
// working on.
type EmailDraftSession struct {
	Phase        EmailPhase    `json:"phase"`
	Form         EmailForm     `json:"form"`
	Offers       []Offer       `json:"offers,omitempty"`
	Draft        string        `json:"draft,omitempty"`
	EditBuffer   string        `json:"editBuffer,omitempty"`
	Instruction  string        `json:"instruction,omitempty"`
	Pending      PendingAction `json:"pending,omitempty"`
	PendingSince time.Time     `json:"pendingSince,omitzero"`
	SentAt       time.Time     `json:"sentAt,omitzero"`
}

// Session is the state of one conversation.
type Session struct {
	ConversationID   string            `json:"conversationId"`
	Messages         []ChatMessage     `json:"messages"`
	PendingOffers    []Offer           `json:"pendingOffers"`
	Email            EmailDraftSession `json:"email"`
	TurnPendingSince time.Time         `json:"turnPendingSince,omitzero"`
	Turns            int               `json:"turns"`
	Version          int               `json:"version"`

	// PersistedMessages is how many of Messages are already in storage.
	PersistedMessages int `json:"-"`
}

// Append adds a message to the end of the transcript.
func (s *Session) Append(msg ChatMessage) {
	s.Messages = append(s.Messages, msg)
}
