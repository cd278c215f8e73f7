package emaildraft

import (
	"errors"
	"fmt"

	"property-agent/internal/domain"
)

var (
	ErrNoPendingOffers  = errors.New("emaildraft: no pending offers to send")
	ErrEmptyDraft       = errors.New("emaildraft: draft is empty")
	ErrEmptyInstruction = errors.New("emaildraft: instruction is empty")
	ErrRequestPending   = errors.New("emaildraft: a request is already pending")
	ErrInvalidEmail     = errors.New("emaildraft: recipient email is not a valid address")
)

// TransitionError is returned when an action is not allowed in the current phase.
type TransitionError struct {
	Action string
	Phase  domain.EmailPhase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("emaildraft: cannot %s while %s", e.Action, e.Phase)
}

// MissingFieldError names a required form field that was empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("emaildraft: %s is required", e.Field)
}

// Actions named by UpstreamError.
const (
	ActionGenerate = "generate draft"
	ActionRevise   = "revise draft"
	ActionSend     = "send email"
)

// UpstreamError wraps a failed call to a draft or delivery service. The
// session has already been returned to the phase it was in before the call.
type UpstreamError struct {
	Action string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("emaildraft: %s: %v", e.Action, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
