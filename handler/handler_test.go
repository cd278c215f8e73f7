package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"property-agent/internal/domain"
	"property-agent/internal/render"
	"property-agent/internal/usecase"
)

type stubChat struct {
	out     usecase.ChatOutput
	err     error
	in      usecase.ChatInput
	session *domain.Session
}

func (s *stubChat) Chat(_ context.Context, in usecase.ChatInput) (usecase.ChatOutput, error) {
	s.in = in
	return s.out, s.err
}

func (s *stubChat) Session(_ context.Context, id string) (*domain.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	sess := *s.session
	sess.ConversationID = id
	return &sess, nil
}

// stubEmail records which action ran and with what arguments.
type stubEmail struct {
	calls []string
	form  domain.EmailForm
	text  string
	err   error
}

func (s *stubEmail) record(name, id string) (*domain.Session, error) {
	s.calls = append(s.calls, name)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Session{
		ConversationID: id,
		Email:          domain.EmailDraftSession{Phase: domain.PhasePreviewing, Draft: "<p>draft</p>"},
	}, nil
}

func (s *stubEmail) OpenForm(_ context.Context, id string) (*domain.Session, error) {
	return s.record("OpenForm", id)
}

func (s *stubEmail) CloseForm(_ context.Context, id string) (*domain.Session, error) {
	return s.record("CloseForm", id)
}

func (s *stubEmail) Preview(_ context.Context, id string, form domain.EmailForm) (*domain.Session, error) {
	s.form = form
	return s.record("Preview", id)
}

func (s *stubEmail) StartManualEdit(_ context.Context, id string) (*domain.Session, error) {
	return s.record("StartManualEdit", id)
}

func (s *stubEmail) SaveManualEdit(_ context.Context, id, draft string) (*domain.Session, error) {
	s.text = draft
	return s.record("SaveManualEdit", id)
}

func (s *stubEmail) StartInstructionEdit(_ context.Context, id string) (*domain.Session, error) {
	return s.record("StartInstructionEdit", id)
}

func (s *stubEmail) Revise(_ context.Context, id, instruction string) (*domain.Session, error) {
	s.text = instruction
	return s.record("Revise", id)
}

func (s *stubEmail) CancelEdit(_ context.Context, id string) (*domain.Session, error) {
	return s.record("CancelEdit", id)
}

func (s *stubEmail) Send(_ context.Context, id string) (*domain.Session, error) {
	return s.record("Send", id)
}

func (s *stubEmail) Cancel(_ context.Context, id string) (*domain.Session, error) {
	return s.record("Cancel", id)
}

type stubOffers struct {
	created  []domain.Offer
	updated  domain.Offer
	vectorID string
	err      error
}

func (s *stubOffers) Create(_ context.Context, in []domain.Offer) ([]domain.Offer, error) {
	s.created = in
	return in, s.err
}

func (s *stubOffers) List(_ context.Context) ([]domain.Offer, error) {
	return nil, s.err
}

func (s *stubOffers) Update(_ context.Context, vectorID string, o domain.Offer) (domain.Offer, error) {
	s.vectorID = vectorID
	s.updated = o
	return o, s.err
}

func (s *stubOffers) Delete(_ context.Context, vectorID string) error {
	s.vectorID = vectorID
	return s.err
}

type fixture struct {
	chat   *stubChat
	email  *stubEmail
	offers *stubOffers
	h      *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chat:   &stubChat{session: &domain.Session{}},
		email:  &stubEmail{},
		offers: &stubOffers{},
	}
	h, err := NewHandler(f.chat, f.email, f.offers)
	require.NoError(t, err)
	f.h = h
	return f
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func (f *fixture) do(t *testing.T, method, path, body string) events.APIGatewayProxyResponse {
	t.Helper()
	resp, err := f.h.Handle(context.Background(), makeEvent(method, path, body))
	require.NoError(t, err)
	return resp
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, &stubEmail{}, &stubOffers{})
	require.Error(t, err)
	_, err = NewHandler(&stubChat{}, nil, &stubOffers{})
	require.Error(t, err)
	_, err = NewHandler(&stubChat{}, &stubEmail{}, nil)
	require.Error(t, err)
}

func TestHandle_Chat_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.chat.out = usecase.ChatOutput{
		ConversationID: "conv-1",
		Reply:          "Sunny Loft\nPrice: 450000",
		Nodes:          render.Message("Sunny Loft\nPrice: 450000"),
		Offers:         []domain.Offer{{ID: "id1", Title: "Sunny Loft"}},
	}

	resp := f.do(t, http.MethodPost, "/chat", `{"message":"a loft please","conversationId":"conv-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ChatInput{Message: "a loft please", ConversationID: "conv-1"}, f.chat.in)

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, "conv-1", out.ConversationID)
	require.Equal(t, "Sunny Loft\nPrice: 450000", out.Response)
	require.Equal(t, render.KindCard, out.Nodes[0].Kind)
	require.Contains(t, out.HTML, `<h3 class="offer-title">Sunny Loft</h3>`)
	require.Contains(t, out.HTML, `<strong>Price:</strong> <span>450000</span>`)
	require.Equal(t, "id1", out.Offers[0].ID)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
}

func TestHandle_Chat_EmptyOffersIsArray(t *testing.T) {
	f := newFixture(t)
	f.chat.out = usecase.ChatOutput{ConversationID: "conv-1", Reply: "none"}

	resp := f.do(t, http.MethodPost, "/chat", `{"message":"castle"}`)
	require.Contains(t, resp.Body, `"offers":[]`)
}

func TestHandle_InvalidBody(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/chat", `not-json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Equal(t, "invalid_json", out.Reason)

	resp = f.do(t, http.MethodPost, "/chat", ``)
	out = parseBody[errorResponse](t, resp.Body)
	require.Equal(t, "empty_body", out.Reason)
}

func TestHandle_Base64Body(t *testing.T) {
	f := newFixture(t)
	event := makeEvent(http.MethodPost, "/chat", base64.StdEncoding.EncodeToString([]byte(`{"message":"hi"}`)))
	event.IsBase64Encoded = true

	resp, err := f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hi", f.chat.in.Message)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "invalid question", err: &usecase.Error{Code: usecase.ErrorInvalidQuestion, Reason: "moderation_flagged"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidQuestion)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "session_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "conflict", err: &usecase.Error{Code: usecase.ErrorConflict, Reason: "turn_pending"}, status: http.StatusConflict, code: string(usecase.ErrorConflict)},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "openai_rate_limited"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "openai_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "dynamodb_write_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.chat.err = tc.err

			resp := f.do(t, http.MethodPost, "/chat", `{"message":"hi"}`)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.NotEmpty(t, out.Message)
		})
	}
}

func TestHandle_UpstreamMessageIsGeneric(t *testing.T) {
	f := newFixture(t)
	f.chat.err = &usecase.Error{Code: usecase.ErrorUpstream, Reason: "openai_error", Err: errors.New("secret upstream detail")}

	resp := f.do(t, http.MethodPost, "/chat", `{"message":"hi"}`)
	require.NotContains(t, resp.Body, "secret upstream detail")
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	f := newFixture(t)
	event := makeEvent(http.MethodPost, "/chat", `{"message":"hi"}`)
	event.Headers["x-correlation-id"] = "corr-123"

	resp, err := f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_GetSession(t *testing.T) {
	f := newFixture(t)
	f.chat.session = &domain.Session{
		Messages: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "loft?"},
			{Role: domain.RoleAssistant, Content: "Sunny Loft\nPrice: 1"},
			{Role: domain.RoleEmailPreview, Content: "<p>draft</p>"},
		},
		Email: domain.EmailDraftSession{SentAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)},
	}

	resp := f.do(t, http.MethodGet, "/sessions/conv-9", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[sessionResponse](t, resp.Body)
	require.Equal(t, "conv-9", out.ConversationID)
	require.Len(t, out.Messages, 3)
	require.Empty(t, out.Messages[0].Nodes)
	require.Equal(t, render.KindCard, out.Messages[1].Nodes[0].Kind)
	require.Contains(t, out.Messages[1].HTML, `<div class="offer-card">`)
	require.Empty(t, out.Messages[0].HTML)
	require.Empty(t, out.Messages[2].Nodes)
	require.Empty(t, out.Messages[2].HTML)
	require.Equal(t, domain.PhaseIdle, out.Email.Phase)
	require.NotNil(t, out.Email.SentAt)
	require.NotNil(t, out.PendingOffers)
}

func TestHandle_EmailRoutes(t *testing.T) {
	cases := []struct {
		method string
		path   string
		body   string
		call   string
	}{
		{method: http.MethodPost, path: "/sessions/c1/email/form", call: "OpenForm"},
		{method: http.MethodDelete, path: "/sessions/c1/email/form", call: "CloseForm"},
		{method: http.MethodPost, path: "/sessions/c1/email/preview", body: `{"email":"c@example.com","agentName":"Anna","clientName":"Jan","agentNote":"n"}`, call: "Preview"},
		{method: http.MethodPost, path: "/sessions/c1/email/edit/manual", call: "StartManualEdit"},
		{method: http.MethodPut, path: "/sessions/c1/email/edit/manual", body: `{"draft":"<p>x</p>"}`, call: "SaveManualEdit"},
		{method: http.MethodPost, path: "/sessions/c1/email/edit/instruction", call: "StartInstructionEdit"},
		{method: http.MethodPut, path: "/sessions/c1/email/edit/instruction", body: `{"instruction":"shorter"}`, call: "Revise"},
		{method: http.MethodDelete, path: "/sessions/c1/email/edit", call: "CancelEdit"},
		{method: http.MethodPost, path: "/sessions/c1/email/send", call: "Send"},
		{method: http.MethodPost, path: "/sessions/c1/email/cancel/", call: "Cancel"},
	}

	for _, tc := range cases {
		t.Run(tc.call, func(t *testing.T) {
			f := newFixture(t)
			resp := f.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
			require.Equal(t, []string{tc.call}, f.email.calls)

			out := parseBody[sessionResponse](t, resp.Body)
			require.Equal(t, "c1", out.ConversationID)
			require.Equal(t, domain.PhasePreviewing, out.Email.Phase)
		})
	}
}

func TestHandle_EmailPayloads(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/sessions/c1/email/preview", `{"email":"c@example.com","agentName":"Anna","clientName":"Jan","agentNote":"n"}`)
	require.Equal(t, domain.EmailForm{RecipientEmail: "c@example.com", AgentName: "Anna", ClientName: "Jan", AgentNote: "n"}, f.email.form)

	f.do(t, http.MethodPut, "/sessions/c1/email/edit/instruction", `{"instruction":"shorter"}`)
	require.Equal(t, "shorter", f.email.text)

	resp := f.do(t, http.MethodPut, "/sessions/c1/email/edit/manual", `{`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_EmailConflict(t *testing.T) {
	f := newFixture(t)
	f.email.err = &usecase.Error{Code: usecase.ErrorConflict, Reason: "invalid_transition"}

	resp := f.do(t, http.MethodPost, "/sessions/c1/email/send", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "invalid_transition", parseBody[errorResponse](t, resp.Body).Reason)
}

func TestHandle_OfferRoutes(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/offers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"offers":[]}`, resp.Body)

	resp = f.do(t, http.MethodPost, "/offers", `{"title":"Loft","type":"apartment","price":"450000","amenities":"lift, balcony"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, f.offers.created, 1)
	require.Equal(t, 450000.0, f.offers.created[0].Price)
	require.Equal(t, []string{"lift", "balcony"}, f.offers.created[0].Amenities)

	resp = f.do(t, http.MethodPost, "/offers", `[{"title":"A"},{"title":"B"}]`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, f.offers.created, 2)

	resp = f.do(t, http.MethodPut, "/offers/vec-1", `{"id":"id1","title":"Loft v2"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "vec-1", f.offers.vectorID)
	require.Equal(t, "Loft v2", f.offers.updated.Title)

	resp = f.do(t, http.MethodPut, "/offers/vec-1", `[{"title":"A"},{"title":"B"}]`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/offers/vec-2", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "vec-2", f.offers.vectorID)
}

func TestHandle_OfferNotFound(t *testing.T) {
	f := newFixture(t)
	f.offers.err = &usecase.Error{Code: usecase.ErrorNotFound, Reason: "offer_not_found"}

	resp := f.do(t, http.MethodDelete, "/offers/vec-x", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandle_RoutingMisses(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "route_not_found", parseBody[errorResponse](t, resp.Body).Reason)

	resp = f.do(t, http.MethodGet, "/chat", "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, "POST", resp.Headers["Allow"])

	resp = f.do(t, http.MethodGet, "/sessions/c1/email/send", "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/sessions/c1/email/unknown", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Empty(t, f.email.calls)

	resp = f.do(t, http.MethodOptions, "/chat", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Contains(t, resp.Headers["Access-Control-Allow-Methods"], "DELETE")
}

func TestServeHTTP_Bridge(t *testing.T) {
	f := newFixture(t)
	f.chat.out = usecase.ChatOutput{ConversationID: "conv-1", Reply: "ok"}
	srv := httptest.NewServer(f.h)
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/chat", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	req.Header.Set("X-Correlation-Id", "corr-http")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "corr-http", resp.Header.Get("X-Correlation-Id"))
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var out chatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "ok", out.Response)
	require.Equal(t, "hi", f.chat.in.Message)
}
