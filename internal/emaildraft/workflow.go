package emaildraft

import (
	"context"
	"errors"

	"property-agent/internal/domain"
)

type DraftGenerator interface {
	GenerateDraft(ctx context.Context, req DraftRequest) (string, error)
}

type DraftReviser interface {
	ReviseDraft(ctx context.Context, req RevisionRequest) (string, error)
}

type Sender interface {
	Send(ctx context.Context, req SendRequest) error
}

// SaveFunc persists the session the machine is working on. It is called once
// the pending flag is set and again when the outbound call has settled.
type SaveFunc func(ctx context.Context) error

// Generate runs BeginGenerate, the generator and the matching completion.
func (m *Machine) Generate(ctx context.Context, gen DraftGenerator, form domain.EmailForm, pending []domain.Offer, save SaveFunc) error {
	req, err := m.BeginGenerate(form, pending)
	if err != nil {
		return err
	}
	if err := save(ctx); err != nil {
		return err
	}

	draft, err := gen.GenerateDraft(ctx, req)
	if err != nil {
		m.FailGenerate()
		return errors.Join(&UpstreamError{Action: ActionGenerate, Err: err}, save(ctx))
	}
	if err := m.CompleteGenerate(draft); err != nil {
		return errors.Join(&UpstreamError{Action: ActionGenerate, Err: err}, save(ctx))
	}
	return save(ctx)
}

// Revise runs BeginRevision, the reviser and the matching completion.
func (m *Machine) Revise(ctx context.Context, rev DraftReviser, instruction string, save SaveFunc) error {
	req, err := m.BeginRevision(instruction)
	if err != nil {
		return err
	}
	if err := save(ctx); err != nil {
		return err
	}

	draft, err := rev.ReviseDraft(ctx, req)
	if err != nil {
		m.FailRevision()
		return errors.Join(&UpstreamError{Action: ActionRevise, Err: err}, save(ctx))
	}
	if err := m.CompleteRevision(draft); err != nil {
		return errors.Join(&UpstreamError{Action: ActionRevise, Err: err}, save(ctx))
	}
	return save(ctx)
}

// Send hands the approved draft to the delivery service.
func (m *Machine) Send(ctx context.Context, sender Sender, save SaveFunc) error {
	req, err := m.BeginSend()
	if err != nil {
		return err
	}
	if err := save(ctx); err != nil {
		return err
	}

	if err := sender.Send(ctx, req); err != nil {
		m.FailSend()
		return errors.Join(&UpstreamError{Action: ActionSend, Err: err}, save(ctx))
	}
	if err := m.CompleteSend(); err != nil {
		return errors.Join(err, save(ctx))
	}
	return save(ctx)
}
