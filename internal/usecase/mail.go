package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"property-agent/internal/emaildraft"
	"property-agent/internal/integrations/resend"
	"property-agent/internal/observability"
)

type Mailer interface {
	Send(ctx context.Context, msg resend.Message) (string, error)
}

// MailSender delivers approved drafts from the configured sender address,
// using the agent's name as display name.
type MailSender struct {
	mailer Mailer
	from   string
}

func NewMailSender(m Mailer, from string) (*MailSender, error) {
	if m == nil {
		return nil, errors.New("usecase: mailer must not be nil")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(from))
	if err != nil {
		return nil, fmt.Errorf("usecase: invalid sender address: %w", err)
	}
	return &MailSender{mailer: m, from: addr.Address}, nil
}

func (s *MailSender) Send(ctx context.Context, req emaildraft.SendRequest) error {
	name := strings.TrimSpace(req.FromName)
	from := (&mail.Address{Name: name, Address: s.from}).String()
	id, err := s.mailer.Send(ctx, resend.Message{
		From:    from,
		To:      []string{req.To},
		Subject: "Property offers from " + name,
		HTML:    req.HTML,
	})
	if err != nil {
		return fmt.Errorf("usecase: send email: %w", err)
	}
	observability.Logger(ctx).Info("email sent", "message_id", id)
	return nil
}
