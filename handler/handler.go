package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"property-agent/internal/domain"
	"property-agent/internal/observability"
	"property-agent/internal/offers"
	"property-agent/internal/render"
	"property-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	Session(ctx context.Context, conversationID string) (*domain.Session, error)
}

type EmailUseCase interface {
	OpenForm(ctx context.Context, conversationID string) (*domain.Session, error)
	CloseForm(ctx context.Context, conversationID string) (*domain.Session, error)
	Preview(ctx context.Context, conversationID string, form domain.EmailForm) (*domain.Session, error)
	StartManualEdit(ctx context.Context, conversationID string) (*domain.Session, error)
	SaveManualEdit(ctx context.Context, conversationID, draft string) (*domain.Session, error)
	StartInstructionEdit(ctx context.Context, conversationID string) (*domain.Session, error)
	Revise(ctx context.Context, conversationID, instruction string) (*domain.Session, error)
	CancelEdit(ctx context.Context, conversationID string) (*domain.Session, error)
	Send(ctx context.Context, conversationID string) (*domain.Session, error)
	Cancel(ctx context.Context, conversationID string) (*domain.Session, error)
}

type OfferUseCase interface {
	Create(ctx context.Context, in []domain.Offer) ([]domain.Offer, error)
	List(ctx context.Context) ([]domain.Offer, error)
	Update(ctx context.Context, vectorID string, o domain.Offer) (domain.Offer, error)
	Delete(ctx context.Context, vectorID string) error
}

type Handler struct {
	chat   ChatUseCase
	email  EmailUseCase
	offers OfferUseCase
}

func NewHandler(chat ChatUseCase, email EmailUseCase, offers OfferUseCase) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if email == nil {
		return nil, errors.New("handler: email use case must not be nil")
	}
	if offers == nil {
		return nil, errors.New("handler: offer use case must not be nil")
	}
	return &Handler{chat: chat, email: email, offers: offers}, nil
}

// request is one routed call: path segments after the leading slash plus the
// decoded body.
type request struct {
	method   string
	segments []string
	body     string
}

// Handle serves an API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	correlationID := headerValue(event, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = observability.WithCorrelationID(ctx, correlationID)
	log := observability.Logger(ctx)

	req := request{
		method:   strings.ToUpper(event.HTTPMethod),
		segments: splitPath(event.Path),
		body:     event.Body,
	}
	var resp events.APIGatewayProxyResponse
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			resp = h.fail(ctx, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err})
		}
		req.body = string(decoded)
	}
	if resp.StatusCode == 0 {
		resp = h.route(ctx, req)
	}

	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	for k, v := range corsHeaders() {
		resp.Headers[k] = v
	}
	resp.Headers[correlationHeader] = correlationID

	log.Info("request served",
		"method", req.method,
		"path", event.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, r request) events.APIGatewayProxyResponse {
	if r.method == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}
	}
	seg := r.segments
	switch {
	case len(seg) == 1 && seg[0] == "chat":
		if r.method != http.MethodPost {
			return methodNotAllowed(http.MethodPost)
		}
		return h.handleChat(ctx, r)
	case len(seg) >= 2 && seg[0] == "sessions" && seg[1] != "":
		return h.routeSession(ctx, r, seg[1], seg[2:])
	case len(seg) == 1 && seg[0] == "offers":
		switch r.method {
		case http.MethodGet:
			return h.handleListOffers(ctx)
		case http.MethodPost:
			return h.handleCreateOffers(ctx, r)
		}
		return methodNotAllowed(http.MethodGet, http.MethodPost)
	case len(seg) == 2 && seg[0] == "offers" && seg[1] != "":
		switch r.method {
		case http.MethodPut:
			return h.handleUpdateOffer(ctx, r, seg[1])
		case http.MethodDelete:
			return h.handleDeleteOffer(ctx, seg[1])
		}
		return methodNotAllowed(http.MethodPut, http.MethodDelete)
	}
	return writeError(http.StatusNotFound, errorResponse{
		Error:   string(usecase.ErrorNotFound),
		Reason:  "route_not_found",
		Message: "No such endpoint.",
	})
}

// routeSession serves /sessions/{id} and everything below it.
func (h *Handler) routeSession(ctx context.Context, r request, id string, rest []string) events.APIGatewayProxyResponse {
	path := strings.Join(rest, "/")
	type action func() (*domain.Session, error)
	var run action

	switch {
	case path == "" && r.method == http.MethodGet:
		run = func() (*domain.Session, error) { return h.chat.Session(ctx, id) }
	case path == "email/form" && r.method == http.MethodPost:
		run = func() (*domain.Session, error) { return h.email.OpenForm(ctx, id) }
	case path == "email/form" && r.method == http.MethodDelete:
		run = func() (*domain.Session, error) { return h.email.CloseForm(ctx, id) }
	case path == "email/preview" && r.method == http.MethodPost:
		var in previewRequest
		if err := decodeJSON(r.body, &in); err != nil {
			return h.fail(ctx, err)
		}
		form := domain.EmailForm{
			RecipientEmail: in.Email,
			AgentName:      in.AgentName,
			ClientName:     in.ClientName,
			AgentNote:      in.AgentNote,
		}
		run = func() (*domain.Session, error) { return h.email.Preview(ctx, id, form) }
	case path == "email/edit/manual" && r.method == http.MethodPost:
		run = func() (*domain.Session, error) { return h.email.StartManualEdit(ctx, id) }
	case path == "email/edit/manual" && r.method == http.MethodPut:
		var in manualEditRequest
		if err := decodeJSON(r.body, &in); err != nil {
			return h.fail(ctx, err)
		}
		run = func() (*domain.Session, error) { return h.email.SaveManualEdit(ctx, id, in.Draft) }
	case path == "email/edit/instruction" && r.method == http.MethodPost:
		run = func() (*domain.Session, error) { return h.email.StartInstructionEdit(ctx, id) }
	case path == "email/edit/instruction" && r.method == http.MethodPut:
		var in instructionRequest
		if err := decodeJSON(r.body, &in); err != nil {
			return h.fail(ctx, err)
		}
		run = func() (*domain.Session, error) { return h.email.Revise(ctx, id, in.Instruction) }
	case path == "email/edit" && r.method == http.MethodDelete:
		run = func() (*domain.Session, error) { return h.email.CancelEdit(ctx, id) }
	case path == "email/send" && r.method == http.MethodPost:
		run = func() (*domain.Session, error) { return h.email.Send(ctx, id) }
	case path == "email/cancel" && r.method == http.MethodPost:
		run = func() (*domain.Session, error) { return h.email.Cancel(ctx, id) }
	}

	if run == nil {
		if allowed := sessionMethods[path]; len(allowed) > 0 {
			return methodNotAllowed(allowed...)
		}
		return writeError(http.StatusNotFound, errorResponse{
			Error:   string(usecase.ErrorNotFound),
			Reason:  "route_not_found",
			Message: "No such endpoint.",
		})
	}

	sess, err := run()
	if err != nil {
		return h.fail(ctx, err)
	}
	resp, err := toSessionResponse(sess)
	if err != nil {
		return h.fail(ctx, err)
	}
	return writeJSON(http.StatusOK, resp)
}

var sessionMethods = map[string][]string{
	"":                       {http.MethodGet},
	"email/form":             {http.MethodPost, http.MethodDelete},
	"email/preview":          {http.MethodPost},
	"email/edit/manual":      {http.MethodPost, http.MethodPut},
	"email/edit/instruction": {http.MethodPost, http.MethodPut},
	"email/edit":             {http.MethodDelete},
	"email/send":             {http.MethodPost},
	"email/cancel":           {http.MethodPost},
}

func (h *Handler) handleChat(ctx context.Context, r request) events.APIGatewayProxyResponse {
	var in chatRequest
	if err := decodeJSON(r.body, &in); err != nil {
		return h.fail(ctx, err)
	}
	out, err := h.chat.Chat(ctx, usecase.ChatInput{
		Message:        in.Message,
		ConversationID: in.ConversationID,
	})
	if err != nil {
		return h.fail(ctx, err)
	}
	html, err := render.HTML(out.Nodes)
	if err != nil {
		return h.fail(ctx, err)
	}
	return writeJSON(http.StatusOK, chatResponse{
		ConversationID: out.ConversationID,
		Response:       out.Reply,
		Nodes:          out.Nodes,
		HTML:           html,
		Offers:         nonNil(out.Offers),
	})
}

func (h *Handler) handleListOffers(ctx context.Context) events.APIGatewayProxyResponse {
	list, err := h.offers.List(ctx)
	if err != nil {
		return h.fail(ctx, err)
	}
	return writeJSON(http.StatusOK, offersResponse{Offers: nonNil(list)})
}

func (h *Handler) handleCreateOffers(ctx context.Context, r request) events.APIGatewayProxyResponse {
	in, err := decodeOffers(r.body)
	if err != nil {
		return h.fail(ctx, err)
	}
	created, err := h.offers.Create(ctx, in)
	if err != nil {
		return h.fail(ctx, err)
	}
	return writeJSON(http.StatusCreated, offersResponse{Offers: created})
}

func (h *Handler) handleUpdateOffer(ctx context.Context, r request, vectorID string) events.APIGatewayProxyResponse {
	in, err := decodeOffers(r.body)
	if err != nil {
		return h.fail(ctx, err)
	}
	if len(in) != 1 {
		return h.fail(ctx, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "single_offer_required"})
	}
	updated, err := h.offers.Update(ctx, vectorID, in[0])
	if err != nil {
		return h.fail(ctx, err)
	}
	return writeJSON(http.StatusOK, updated)
}

func (h *Handler) handleDeleteOffer(ctx context.Context, vectorID string) events.APIGatewayProxyResponse {
	if err := h.offers.Delete(ctx, vectorID); err != nil {
		return h.fail(ctx, err)
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}
}

// fail maps an error to its response and logs it at a level matching the
// status.
func (h *Handler) fail(ctx context.Context, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		ucErr = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected_error", Err: err}
	}
	status := statusFor(ucErr.Code)
	log := observability.Logger(ctx)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	} else {
		log.Info("request rejected", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	return writeError(status, errorResponse{
		Error:   string(ucErr.Code),
		Reason:  ucErr.Reason,
		Message: messageFor(ucErr.Code),
	})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput, usecase.ErrorInvalidQuestion:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorConflict:
		return http.StatusConflict
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(code usecase.ErrorCode) string {
	switch code {
	case usecase.ErrorInvalidInput:
		return "The request is missing a required field or contains an invalid value."
	case usecase.ErrorInvalidQuestion:
		return "That message can't be answered."
	case usecase.ErrorNotFound:
		return "The requested resource was not found."
	case usecase.ErrorConflict:
		return "The request conflicts with the current state. Reload and try again."
	case usecase.ErrorRateLimited:
		return "Too many requests right now. Please try again shortly."
	default:
		return "Sorry, something went wrong. Please try again."
	}
}

func decodeJSON(body string, v any) error {
	if strings.TrimSpace(body) == "" {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_body"}
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err}
	}
	return nil
}

// decodeOffers accepts a single offer object or an array of them. Values go
// through the same tolerant conversion used for stored listings.
func decodeOffers(body string) ([]domain.Offer, error) {
	var raws []map[string]any
	if strings.HasPrefix(strings.TrimSpace(body), "[") {
		if err := decodeJSON(body, &raws); err != nil {
			return nil, err
		}
	} else {
		var one map[string]any
		if err := decodeJSON(body, &one); err != nil {
			return nil, err
		}
		raws = []map[string]any{one}
	}

	out := make([]domain.Offer, 0, len(raws))
	for i, raw := range raws {
		o, err := offers.FromMetadata(raw)
		if err != nil {
			return nil, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_offer", Err: fmt.Errorf("offer %d: %w", i, err)}
		}
		out = append(out, o)
	}
	return out, nil
}

func writeJSON(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return writeError(http.StatusInternalServerError, errorResponse{
			Error:   string(usecase.ErrorInternal),
			Reason:  "encode_error",
			Message: messageFor(usecase.ErrorInternal),
		})
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func writeError(status int, e errorResponse) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(e)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func methodNotAllowed(allowed ...string) events.APIGatewayProxyResponse {
	resp := writeError(http.StatusMethodNotAllowed, errorResponse{
		Error:   "METHOD_NOT_ALLOWED",
		Reason:  "method_not_allowed",
		Message: "This endpoint does not support that method.",
	})
	resp.Headers["Allow"] = strings.Join(allowed, ", ")
	return resp
}

func corsHeaders() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization, " + correlationHeader,
	}
}

func headerValue(event events.APIGatewayProxyRequest, name string) string {
	for k, v := range event.Headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	for k, vs := range event.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
	}
	return ""
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
