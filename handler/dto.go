package handler

import (
	"time"

	"property-agent/internal/domain"
	"property-agent/internal/render"
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type chatResponse struct {
	ConversationID string         `json:"conversationId"`
	Response       string         `json:"response"`
	Nodes          []render.Node  `json:"nodes"`
	HTML           string         `json:"html"`
	Offers         []domain.Offer `json:"offers"`
}

type previewRequest struct {
	Email      string `json:"email"`
	AgentName  string `json:"agentName"`
	ClientName string `json:"clientName"`
	AgentNote  string `json:"agentNote"`
}

type manualEditRequest struct {
	Draft string `json:"draft"`
}

type instructionRequest struct {
	Instruction string `json:"instruction"`
}

type messageResponse struct {
	Role    domain.Role   `json:"role"`
	Content string        `json:"content"`
	Nodes   []render.Node `json:"nodes,omitempty"`
	HTML    string        `json:"html,omitempty"`
}

type emailFormResponse struct {
	Email      string `json:"email"`
	AgentName  string `json:"agentName"`
	ClientName string `json:"clientName"`
	AgentNote  string `json:"agentNote,omitempty"`
}

type emailResponse struct {
	Phase       domain.EmailPhase    `json:"phase"`
	Form        emailFormResponse    `json:"form"`
	Offers      []domain.Offer       `json:"offers"`
	Draft       string               `json:"draft,omitempty"`
	EditBuffer  string               `json:"editBuffer,omitempty"`
	Instruction string               `json:"instruction,omitempty"`
	Pending     domain.PendingAction `json:"pending,omitempty"`
	SentAt      *time.Time           `json:"sentAt,omitempty"`
}

type sessionResponse struct {
	ConversationID string            `json:"conversationId"`
	Messages       []messageResponse `json:"messages"`
	PendingOffers  []domain.Offer    `json:"pendingOffers"`
	Turns          int               `json:"turns"`
	Email          emailResponse     `json:"email"`
}

type offersResponse struct {
	Offers []domain.Offer `json:"offers"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// toSessionResponse renders assistant messages as display nodes and HTML.
func toSessionResponse(s *domain.Session) (sessionResponse, error) {
	msgs := make([]messageResponse, 0, len(s.Messages))
	for _, m := range s.Messages {
		out := messageResponse{Role: m.Role, Content: m.Content}
		if m.Role == domain.RoleAssistant {
			out.Nodes = render.Message(m.Content)
			html, err := render.HTML(out.Nodes)
			if err != nil {
				return sessionResponse{}, err
			}
			out.HTML = html
		}
		msgs = append(msgs, out)
	}
	return sessionResponse{
		ConversationID: s.ConversationID,
		Messages:       msgs,
		PendingOffers:  nonNil(s.PendingOffers),
		Turns:          s.Turns,
		Email:          toEmailResponse(s.Email),
	}, nil
}

func toEmailResponse(e domain.EmailDraftSession) emailResponse {
	out := emailResponse{
		Phase: e.Phase,
		Form: emailFormResponse{
			Email:      e.Form.RecipientEmail,
			AgentName:  e.Form.AgentName,
			ClientName: e.Form.ClientName,
			AgentNote:  e.Form.AgentNote,
		},
		Offers:      nonNil(e.Offers),
		Draft:       e.Draft,
		EditBuffer:  e.EditBuffer,
		Instruction: e.Instruction,
		Pending:     e.Pending,
	}
	if out.Phase == "" {
		out.Phase = domain.PhaseIdle
	}
	if !e.SentAt.IsZero() {
		sent := e.SentAt
		out.SentAt = &sent
	}
	return out
}

func nonNil(offers []domain.Offer) []domain.Offer {
	if offers == nil {
		return []domain.Offer{}
	}
	return offers
}
