// Package emaildraft is the state machine behind an outbound offer
// recommendation email: form, generation, manual and instructed edits,
// approval and cancellation.
//
//	idle ─OpenForm→ form_open ─BeginGenerate→ generating ─CompleteGenerate→ previewing
//	                    ↑                          │ FailGenerate
//	                    └──────────────────────────┘
//	previewing ─StartManualEdit→ manual_editing ─SaveManualEdit/CancelEdit→ previewing
//	previewing ─StartInstructionEdit→ instruction_editing ─CompleteRevision/CancelEdit→ previewing
//	previewing ─BeginSend…CompleteSend→ approved
//	previewing|editing ─Cancel→ idle
//
// Outbound requests set a pending flag so the same action cannot be submitted
// twice; a flag older than StaleAfter is considered abandoned.
package emaildraft

import (
	"net/mail"
	"strings"
	"time"

	"property-agent/internal/domain"
)

// StaleAfter is how long a pending request blocks the session.
const StaleAfter = 2 * time.Minute

const (
	SentNotice      = "✅ Email sent!"
	CancelledNotice = "Email sending cancelled."
)

var now = time.Now

// Transcript receives the messages the lifecycle adds to the conversation.
type Transcript interface {
	Append(msg domain.ChatMessage)
}

// DraftRequest is what the draft generation service needs.
type DraftRequest struct {
	Form   domain.EmailForm
	Offers []domain.Offer
}

// RevisionRequest is what the draft revision service needs.
type RevisionRequest struct {
	Draft       string
	Instruction string
}

// SendRequest carries exactly the values handed to the delivery service.
type SendRequest struct {
	To       string
	FromName string
	HTML     string
}

// Machine applies transitions to a session it does not own.
type Machine struct {
	s          *domain.EmailDraftSession
	transcript Transcript
}

// New wraps s. A zero session starts idle.
func New(s *domain.EmailDraftSession, t Transcript) *Machine {
	if s.Phase == "" {
		s.Phase = domain.PhaseIdle
	}
	return &Machine{s: s, transcript: t}
}

// Phase returns the current phase.
func (m *Machine) Phase() domain.EmailPhase {
	return m.s.Phase
}

// OpenForm starts collecting recipient details. An unsent draft stays in
// place until a new one has been generated.
func (m *Machine) OpenForm(pending []domain.Offer) error {
	if err := m.checkNotPending(); err != nil {
		return err
	}
	switch m.s.Phase {
	case domain.PhaseIdle, domain.PhaseApproved, domain.PhasePreviewing, domain.PhaseFormOpen:
	default:
		return &TransitionError{Action: "open the email form", Phase: m.s.Phase}
	}
	if len(pending) == 0 {
		return ErrNoPendingOffers
	}
	m.s.Phase = domain.PhaseFormOpen
	return nil
}

// CloseForm dismisses the form without generating anything.
func (m *Machine) CloseForm() error {
	if err := m.checkNotPending(); err != nil {
		return err
	}
	if m.s.Phase != domain.PhaseFormOpen {
		return &TransitionError{Action: "close the email form", Phase: m.s.Phase}
	}
	if m.s.Draft != "" {
		m.s.Phase = domain.PhasePreviewing
	} else {
		m.s.Phase = domain.PhaseIdle
	}
	return nil
}

// BeginGenerate validates the form and snapshots the pending offers.
func (m *Machine) BeginGenerate(form domain.EmailForm, pending []domain.Offer) (DraftRequest, error) {
	if err := m.checkNotPending(); err != nil {
		return DraftRequest{}, err
	}
	if m.s.Phase != domain.PhaseFormOpen {
		return DraftRequest{}, &TransitionError{Action: "generate a draft", Phase: m.s.Phase}
	}
	form = normalizeForm(form)
	if err := validateForm(form); err != nil {
		return DraftRequest{}, err
	}
	if len(pending) == 0 {
		return DraftRequest{}, ErrNoPendingOffers
	}

	m.s.Form = form
	m.s.Offers = append([]domain.Offer(nil), pending...)
	m.s.Phase = domain.PhaseGenerating
	m.markPending(domain.PendingGenerate)
	return DraftRequest{Form: form, Offers: m.s.Offers}, nil
}

// CompleteGenerate stores the generated draft and shows it in the conversation.
// An empty draft counts as a failed generation.
func (m *Machine) CompleteGenerate(draft string) error {
	if m.s.Phase != domain.PhaseGenerating || m.s.Pending != domain.PendingGenerate {
		return &TransitionError{Action: "store a generated draft", Phase: m.s.Phase}
	}
	if strings.TrimSpace(draft) == "" {
		m.FailGenerate()
		return ErrEmptyDraft
	}
	m.clearPending()
	m.s.Draft = draft
	m.s.EditBuffer = ""
	m.s.Instruction = ""
	m.s.Phase = domain.PhasePreviewing
	m.transcript.Append(domain.ChatMessage{Role: domain.RoleEmailPreview, Content: draft})
	return nil
}

// FailGenerate returns to the form. Any earlier draft is left as it was.
func (m *Machine) FailGenerate() {
	if m.s.Phase != domain.PhaseGenerating {
		return
	}
	m.clearPending()
	m.s.Phase = domain.PhaseFormOpen
}

// StartManualEdit seeds the edit buffer with the current draft.
func (m *Machine) StartManualEdit() (string, error) {
	if err := m.checkNotPending(); err != nil {
		return "", err
	}
	if m.s.Phase != domain.PhasePreviewing {
		return "", &TransitionError{Action: "edit the draft", Phase: m.s.Phase}
	}
	m.s.EditBuffer = m.s.Draft
	m.s.Phase = domain.PhaseManualEditing
	return m.s.EditBuffer, nil
}

// SaveManualEdit replaces the draft with buf as given.
func (m *Machine) SaveManualEdit(buf string) error {
	if m.s.Phase != domain.PhaseManualEditing {
		return &TransitionError{Action: "save a manual edit", Phase: m.s.Phase}
	}
	m.s.Draft = buf
	m.s.EditBuffer = ""
	m.s.Phase = domain.PhasePreviewing
	return nil
}

// StartInstructionEdit switches to describing a change in natural language.
func (m *Machine) StartInstructionEdit() error {
	if err := m.checkNotPending(); err != nil {
		return err
	}
	if m.s.Phase != domain.PhasePreviewing {
		return &TransitionError{Action: "ask for an edit", Phase: m.s.Phase}
	}
	m.s.Instruction = ""
	m.s.Phase = domain.PhaseInstructionEditing
	return nil
}

// BeginRevision records the instruction and marks the revision as pending.
func (m *Machine) BeginRevision(instruction string) (RevisionRequest, error) {
	if err := m.checkNotPending(); err != nil {
		return RevisionRequest{}, err
	}
	if m.s.Phase != domain.PhaseInstructionEditing {
		return RevisionRequest{}, &TransitionError{Action: "revise the draft", Phase: m.s.Phase}
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return RevisionRequest{}, ErrEmptyInstruction
	}
	m.s.Instruction = instruction
	m.markPending(domain.PendingRevise)
	return RevisionRequest{Draft: m.s.Draft, Instruction: instruction}, nil
}

// CompleteRevision replaces the draft and clears the instruction.
func (m *Machine) CompleteRevision(draft string) error {
	if m.s.Phase != domain.PhaseInstructionEditing || m.s.Pending != domain.PendingRevise {
		return &TransitionError{Action: "store a revised draft", Phase: m.s.Phase}
	}
	if strings.TrimSpace(draft) == "" {
		m.FailRevision()
		return ErrEmptyDraft
	}
	m.clearPending()
	m.s.Draft = draft
	m.s.Instruction = ""
	m.s.Phase = domain.PhasePreviewing
	return nil
}

// FailRevision keeps the draft and stays in instruction editing.
func (m *Machine) FailRevision() {
	if m.s.Pending == domain.PendingRevise {
		m.clearPending()
	}
}

// CancelEdit leaves either edit mode without touching the draft.
func (m *Machine) CancelEdit() error {
	if err := m.checkNotPending(); err != nil {
		return err
	}
	switch m.s.Phase {
	case domain.PhaseManualEditing, domain.PhaseInstructionEditing:
	default:
		return &TransitionError{Action: "leave edit mode", Phase: m.s.Phase}
	}
	m.s.EditBuffer = ""
	m.s.Instruction = ""
	m.s.Phase = domain.PhasePreviewing
	return nil
}

// BeginSend checks the draft can be sent and marks the send as pending.
func (m *Machine) BeginSend() (SendRequest, error) {
	if err := m.checkNotPending(); err != nil {
		return SendRequest{}, err
	}
	if m.s.Phase != domain.PhasePreviewing {
		return SendRequest{}, &TransitionError{Action: "send the email", Phase: m.s.Phase}
	}
	if m.s.Form.RecipientEmail == "" {
		return SendRequest{}, &MissingFieldError{Field: "email"}
	}
	if m.s.Form.AgentName == "" {
		return SendRequest{}, &MissingFieldError{Field: "agentName"}
	}
	if strings.TrimSpace(m.s.Draft) == "" {
		return SendRequest{}, ErrEmptyDraft
	}
	m.markPending(domain.PendingSend)
	return SendRequest{To: m.s.Form.RecipientEmail, FromName: m.s.Form.AgentName, HTML: m.s.Draft}, nil
}

// CompleteSend records the delivery and confirms it in the conversation.
// The sent draft is dropped so it cannot be previewed or sent again.
func (m *Machine) CompleteSend() error {
	if m.s.Phase != domain.PhasePreviewing || m.s.Pending != domain.PendingSend {
		return &TransitionError{Action: "confirm delivery", Phase: m.s.Phase}
	}
	m.clearPending()
	m.s.Draft = ""
	m.s.EditBuffer = ""
	m.s.Instruction = ""
	m.s.Phase = domain.PhaseApproved
	m.s.SentAt = now().UTC()
	m.transcript.Append(domain.ChatMessage{Role: domain.RoleAssistant, Content: SentNotice})
	return nil
}

// FailSend stays in preview so the user can retry.
func (m *Machine) FailSend() {
	if m.s.Pending == domain.PendingSend {
		m.clearPending()
	}
}

// Cancel discards the draft and returns to idle.
func (m *Machine) Cancel() error {
	if err := m.checkNotPending(); err != nil {
		return err
	}
	switch m.s.Phase {
	case domain.PhasePreviewing, domain.PhaseManualEditing, domain.PhaseInstructionEditing:
	default:
		return &TransitionError{Action: "cancel the email", Phase: m.s.Phase}
	}
	m.s.Draft = ""
	m.s.EditBuffer = ""
	m.s.Instruction = ""
	m.s.Offers = nil
	m.s.Phase = domain.PhaseIdle
	m.transcript.Append(domain.ChatMessage{Role: domain.RoleAssistant, Content: CancelledNotice})
	return nil
}

// checkNotPending refuses while a fresh request is outstanding and unwinds an
// abandoned one.
func (m *Machine) checkNotPending() error {
	if m.s.Pending == domain.PendingNone {
		return nil
	}
	if now().Sub(m.s.PendingSince) < StaleAfter {
		return ErrRequestPending
	}
	if m.s.Pending == domain.PendingGenerate && m.s.Phase == domain.PhaseGenerating {
		m.s.Phase = domain.PhaseFormOpen
	}
	m.clearPending()
	return nil
}

func (m *Machine) markPending(a domain.PendingAction) {
	m.s.Pending = a
	m.s.PendingSince = now().UTC()
}

func (m *Machine) clearPending() {
	m.s.Pending = domain.PendingNone
	m.s.PendingSince = time.Time{}
}

func normalizeForm(f domain.EmailForm) domain.EmailForm {
	return domain.EmailForm{
		RecipientEmail: strings.TrimSpace(f.RecipientEmail),
		AgentName:      strings.TrimSpace(f.AgentName),
		ClientName:     strings.TrimSpace(f.ClientName),
		AgentNote:      strings.TrimSpace(f.AgentNote),
	}
}

func validateForm(f domain.EmailForm) error {
	switch {
	case f.RecipientEmail == "":
		return &MissingFieldError{Field: "email"}
	case f.AgentName == "":
		return &MissingFieldError{Field: "agentName"}
	case f.ClientName == "":
		return &MissingFieldError{Field: "clientName"}
	}
	if _, err := mail.ParseAddress(f.RecipientEmail); err != nil {
		return ErrInvalidEmail
	}
	return nil
}
