package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"property-agent/internal/domain"
	"property-agent/internal/integrations/openai"
	"property-agent/internal/integrations/paramstore"
	"property-agent/internal/integrations/resend"
	"property-agent/internal/repository"
)

type mockParams struct {
	vals  map[string]string
	err   error
	calls int
}

func (m *mockParams) GetParameter(_ context.Context, name string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.vals[name]
	if !ok {
		return "", fmt.Errorf("get %s: %w", name, paramstore.ErrNotFound)
	}
	return v, nil
}

type transientParams struct {
	*mockParams
	failOnce bool
}

func (p *transientParams) GetParameter(ctx context.Context, name string) (string, error) {
	if p.failOnce {
		p.failOnce = false
		return "", errors.New("temporary ssm failure")
	}
	return p.mockParams.GetParameter(ctx, name)
}

func defaultParams() *mockParams {
	return &mockParams{
		vals: map[string]string{
			"/prefix/pinned_prompt":       "Answer in English.",
			"/prefix/config/openai_model": "gpt-4o-mini",
		},
	}
}

func newTestSettings(t *testing.T, p ParamGetter) *Settings {
	t.Helper()
	s, err := NewSettings(p, "/prefix")
	require.NoError(t, err)
	return s
}

type chatCall struct {
	model    string
	messages []domain.ChatMessage
	opts     int
}

// mockLLM answers chat calls through reply, or with the fixed answer.
type mockLLM struct {
	answer   string
	chatErr  error
	reply    func(messages []domain.ChatMessage) string
	flagged  bool
	modErr   error
	calls    []chatCall
	modCalls int
}

func (m *mockLLM) Chat(_ context.Context, model string, messages []domain.ChatMessage, opts ...openai.ChatOption) (string, error) {
	m.calls = append(m.calls, chatCall{model: model, messages: messages, opts: len(opts)})
	if m.chatErr != nil {
		return "", m.chatErr
	}
	if m.reply != nil {
		return m.reply(messages), nil
	}
	return m.answer, nil
}

func (m *mockLLM) Moderate(_ context.Context, _ string) (bool, error) {
	m.modCalls++
	return m.flagged, m.modErr
}

type fakeSearcher struct {
	docs  []domain.Document
	err   error
	query string
	k     int
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int) ([]domain.Document, error) {
	f.query = query
	f.k = k
	return f.docs, f.err
}

// memSessions mimics the repository: copies on the way in and out and an
// optimistic version check.
type memSessions struct {
	items   map[string]*domain.Session
	saves   int
	saveErr error
	loadErr error
	// failOnSave limits saveErr to the n-th Save call when set.
	failOnSave int
}

func newMemSessions(seed ...*domain.Session) *memSessions {
	m := &memSessions{items: map[string]*domain.Session{}}
	for _, s := range seed {
		s.Version = 1
		s.PersistedMessages = len(s.Messages)
		m.items[s.ConversationID] = cloneSession(s)
	}
	return m
}

func (m *memSessions) Load(_ context.Context, id string) (*domain.Session, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	s, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *memSessions) Save(_ context.Context, s *domain.Session) error {
	m.saves++
	if m.saveErr != nil && (m.failOnSave == 0 || m.saves == m.failOnSave) {
		return m.saveErr
	}
	stored, ok := m.items[s.ConversationID]
	if (ok && stored.Version != s.Version) || (!ok && s.Version != 0) {
		return repository.ErrConflict
	}
	s.Version++
	s.PersistedMessages = len(s.Messages)
	m.items[s.ConversationID] = cloneSession(s)
	return nil
}

func (m *memSessions) get(t *testing.T, id string) *domain.Session {
	t.Helper()
	s, ok := m.items[id]
	require.True(t, ok, "session %s not stored", id)
	return s
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	c.Messages = append([]domain.ChatMessage(nil), s.Messages...)
	c.PendingOffers = append([]domain.Offer(nil), s.PendingOffers...)
	c.Email.Offers = append([]domain.Offer(nil), s.Email.Offers...)
	return &c
}

type fakeMailer struct {
	sent []resend.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg resend.Message) (string, error) {
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func withUUID(t *testing.T, id string) {
	t.Helper()
	prev := newUUID
	newUUID = func() string { return id }
	t.Cleanup(func() { newUUID = prev })
}

var (
	loft = domain.Offer{
		ID:         "id1",
		Title:      "Sunny Loft",
		Type:       domain.OfferTypeApartment,
		Price:      450000,
		ListingURL: "https://example.com/loft",
	}
	house = domain.Offer{
		ID:         "id2",
		Title:      "Garden House",
		Type:       domain.OfferTypeHouse,
		Price:      720000,
		ListingURL: "https://example.com/house",
	}
)

func docsFor(list ...domain.Offer) []domain.Document {
	out := make([]domain.Document, len(list))
	for i, o := range list {
		o.VectorID = "vec-" + o.ID
		out[i] = domain.Document{VectorID: o.VectorID, Content: o.Title + " listing", Score: 0.9, Offer: o}
	}
	return out
}
