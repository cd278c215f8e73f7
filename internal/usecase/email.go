package usecase

import (
	"context"
	"errors"

	"property-agent/internal/domain"
	"property-agent/internal/emaildraft"
	"property-agent/internal/repository"
)

// EmailService drives the offer email lifecycle of a conversation. Every
// action loads the session, applies one transition and stores it again.
type EmailService struct {
	sessions  SessionStore
	generator emaildraft.DraftGenerator
	reviser   emaildraft.DraftReviser
	sender    emaildraft.Sender
}

func NewEmailService(sessions SessionStore, generator emaildraft.DraftGenerator, reviser emaildraft.DraftReviser, sender emaildraft.Sender) (*EmailService, error) {
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if generator == nil {
		return nil, errors.New("usecase: draft generator must not be nil")
	}
	if reviser == nil {
		return nil, errors.New("usecase: draft reviser must not be nil")
	}
	if sender == nil {
		return nil, errors.New("usecase: sender must not be nil")
	}
	return &EmailService{
		sessions:  sessions,
		generator: generator,
		reviser:   reviser,
		sender:    sender,
	}, nil
}

func (s *EmailService) OpenForm(ctx context.Context, conversationID string) (*domain.Session, error) {
	return s.transition(ctx, conversationID, func(sess *domain.Session, m *emaildraft.Machine) error {
		return m.OpenForm(sess.PendingOffers)
	})
}

func (s *EmailService) CloseForm(ctx context.Context, conversationID string) (*domain.Session, error) {
	return s.transition(ctx, conversationID, func(_ *domain.Session, m *emaildraft.Machine) error {
		return m.CloseForm()
	})
}

// Preview submits the form and generates a draft for the pending offers.
func (s *EmailService) Preview(ctx context.Context, conversationID string, form domain.EmailForm) (*domain.Session, error) {
	return s.run(ctx, conversationID, func(ctx context.Context, sess *domain.Session, m *emaildraft.Machine, save emaildraft.SaveFunc) error {
		return m.Generate(ctx, s.generator, form, sess.PendingOffers, save)
	})
}

func (s *EmailService) StartManualEdit(ctx context.Context, conversationID string) (*domain.Session, error) {
	return s.transition(ctx, conversationID, func(_ *domain.Session, m *emaildraft.Machine) error {
		_, err := m.StartManualEdit()
		return err
	})
}

func (s *EmailService) SaveManualEdit(ctx context.Context, conversationID, draft string) (*domain.Session, error) {
	return s.transition(ctx, conversationID, func(_ *domain.Session, m *emaildraft.Machine) error {
		return m.SaveManualEdit(draft)
	})
}

func (s *EmailService) StartInstructionEdit(ctx context.Context, conversationID string) (*domain.Session, error) {
	return s.transition(ctx, conversationID, func(_ *domain.Session, m *emaildraft.Machine) error {
		return m.StartInstructionEdit()
	})
}

// Revise rewrites the current draft following a free-text instruction.
func (s *EmailService) Revise(ctx context.Context, conversationID, instruction string) (*domain.Session, error) {
	return s.run(ctx, conversationID, func(ctx context.Context, _ *domain.Session, m *emaildraft.Machine, save emaildraft.SaveFunc) error {
		return m.Revise(ctx, s.reviser, instruction, save)
	})
}

func (s *EmailService) CancelEdit(ctx context.Context, conversationID string) (*domain.Session, error) {
	return s.transition(ctx, conversationID, func(_ *domain.Session, m *emaildraft.Machine) error {
		return m.CancelEdit()
	})
}

// Send delivers the previewed draft.
func (s *EmailService) Send(ctx context.Context, conversationID string) (*domain.Session, error) {
	return s.run(ctx, conversationID, func(ctx context.Context, _ *domain.Session, m *emaildraft.Machine, save emaildraft.SaveFunc) error {
		return m.Send(ctx, s.sender, save)
	})
}

// Cancel discards the draft.
func (s *EmailService) Cancel(ctx context.Context, conversationID string) (*domain.Session, error) {
	return s.transition(ctx, conversationID, func(_ *domain.Session, m *emaildraft.Machine) error {
		return m.Cancel()
	})
}

func (s *EmailService) Session(ctx context.Context, conversationID string) (*domain.Session, error) {
	return loadSession(ctx, s.sessions, conversationID)
}

func (s *EmailService) transition(ctx context.Context, conversationID string, apply func(*domain.Session, *emaildraft.Machine) error) (*domain.Session, error) {
	sess, err := loadSession(ctx, s.sessions, conversationID)
	if err != nil {
		return nil, err
	}
	if err := apply(sess, emaildraft.New(&sess.Email, sess)); err != nil {
		return nil, emailError(err)
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, saveError(err)
	}
	return sess, nil
}

type workflowStep func(ctx context.Context, sess *domain.Session, m *emaildraft.Machine, save emaildraft.SaveFunc) error

func (s *EmailService) run(ctx context.Context, conversationID string, step workflowStep) (*domain.Session, error) {
	sess, err := loadSession(ctx, s.sessions, conversationID)
	if err != nil {
		return nil, err
	}
	save := func(ctx context.Context) error {
		return s.sessions.Save(ctx, sess)
	}
	if err := step(ctx, sess, emaildraft.New(&sess.Email, sess), save); err != nil {
		return nil, emailError(err)
	}
	return sess, nil
}

var missingFieldReasons = map[string]string{
	"email":      "missing_email",
	"agentName":  "missing_agent_name",
	"clientName": "missing_client_name",
}

func emailError(err error) error {
	var (
		upstream   *emaildraft.UpstreamError
		transition *emaildraft.TransitionError
		missing    *emaildraft.MissingFieldError
	)
	switch {
	case errors.As(err, &upstream):
		return upstreamError(upstreamService(upstream.Action), err)
	case errors.As(err, &transition):
		return newError(ErrorConflict, "invalid_transition", err)
	case errors.As(err, &missing):
		reason, ok := missingFieldReasons[missing.Field]
		if !ok {
			reason = "missing_field"
		}
		return newError(ErrorInvalidInput, reason, err)
	case errors.Is(err, emaildraft.ErrRequestPending):
		return newError(ErrorConflict, "request_pending", err)
	case errors.Is(err, emaildraft.ErrNoPendingOffers):
		return newError(ErrorConflict, "no_pending_offers", err)
	case errors.Is(err, emaildraft.ErrInvalidEmail):
		return newError(ErrorInvalidInput, "invalid_email", err)
	case errors.Is(err, emaildraft.ErrEmptyDraft):
		return newError(ErrorInvalidInput, "empty_draft", err)
	case errors.Is(err, emaildraft.ErrEmptyInstruction):
		return newError(ErrorInvalidInput, "empty_instruction", err)
	case errors.Is(err, repository.ErrConflict):
		return saveError(err)
	default:
		return newError(ErrorInternal, "dynamodb_write_error", err)
	}
}

func upstreamService(action string) string {
	switch action {
	case emaildraft.ActionGenerate:
		return "draft_generation"
	case emaildraft.ActionRevise:
		return "draft_revision"
	case emaildraft.ActionSend:
		return "email_send"
	default:
		return "upstream"
	}
}
