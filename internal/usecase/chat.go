package usecase

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"property-agent/internal/domain"
	"property-agent/internal/integrations/openai"
	"property-agent/internal/observability"
	"property-agent/internal/recommend"
	"property-agent/internal/render"
	"property-agent/internal/repository"
)

const (
	defaultMaxHistory  = 20
	defaultMaxQuestion = 300
	defaultSearchTopK  = 5
	chatTemperature    = 0.3

	// A turn left pending longer than this is treated as abandoned.
	turnStaleAfter = 2 * time.Minute
)

var now = time.Now

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, opts ...openai.ChatOption) (string, error)
	Moderate(ctx context.Context, input string) (bool, error)
}

type SessionStore interface {
	Load(ctx context.Context, conversationID string) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
}

type OfferSearcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.Document, error)
}

type ChatLimits struct {
	MaxQuestionLength int
	MaxHistoryItems   int
	SearchTopK        int
}

type ChatService struct {
	settings *Settings
	llm      LLMClient
	offers   OfferSearcher
	sessions SessionStore
	limits   ChatLimits
}

type ChatInput struct {
	Message        string
	ConversationID string
}

type ChatOutput struct {
	ConversationID string
	Reply          string
	Nodes          []render.Node
	Offers         []domain.Offer
}

func NewChatService(settings *Settings, llm LLMClient, offers OfferSearcher, sessions SessionStore, limits ChatLimits) (*ChatService, error) {
	if settings == nil {
		return nil, errors.New("usecase: settings must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if offers == nil {
		return nil, errors.New("usecase: offer searcher must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if limits.MaxQuestionLength <= 0 {
		limits.MaxQuestionLength = defaultMaxQuestion
	}
	if limits.MaxHistoryItems <= 0 {
		limits.MaxHistoryItems = defaultMaxHistory
	}
	if limits.SearchTopK <= 0 {
		limits.SearchTopK = defaultSearchTopK
	}
	return &ChatService{
		settings: settings,
		llm:      llm,
		offers:   offers,
		sessions: sessions,
		limits:   limits,
	}, nil
}

// Chat runs one conversational turn: it answers the message from the offers
// most similar to it and keeps the recommended subset as the session's
// pending offers.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.limits.MaxQuestionLength {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	if err := s.settings.ensureConfig(ctx); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	sess, err := s.openSession(ctx, in.ConversationID)
	if err != nil {
		return ChatOutput{}, err
	}
	if since := sess.TurnPendingSince; !since.IsZero() && now().Sub(since) < turnStaleAfter {
		return ChatOutput{}, newError(ErrorConflict, "turn_pending", nil)
	}
	sess.TurnPendingSince = now()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return ChatOutput{}, saveError(err)
	}

	reply, docs, err := s.answer(ctx, sess, message)
	if err != nil {
		s.releaseTurn(ctx, sess)
		return ChatOutput{}, err
	}

	extracted := recommend.Extract(reply)
	pending := recommend.Offers(recommend.Select(docs, extracted.RecommendedIDs))

	prevMessages, prevPending := len(sess.Messages), sess.PendingOffers
	sess.Append(domain.ChatMessage{Role: domain.RoleUser, Content: message})
	sess.Append(domain.ChatMessage{Role: domain.RoleAssistant, Content: extracted.CleanedText})
	sess.PendingOffers = pending
	sess.Turns++
	sess.TurnPendingSince = time.Time{}
	if err := s.sessions.Save(ctx, sess); err != nil {
		sess.Messages = sess.Messages[:prevMessages]
		sess.PendingOffers = prevPending
		sess.Turns--
		s.releaseTurn(ctx, sess)
		return ChatOutput{}, saveError(err)
	}

	observability.Logger(ctx).Info("chat turn complete",
		"conversation_id", sess.ConversationID,
		"retrieved", len(docs),
		"recommended", len(pending),
	)
	return ChatOutput{
		ConversationID: sess.ConversationID,
		Reply:          extracted.CleanedText,
		Nodes:          render.Message(extracted.CleanedText),
		Offers:         pending,
	}, nil
}

// Session returns the stored state of a conversation.
func (s *ChatService) Session(ctx context.Context, conversationID string) (*domain.Session, error) {
	return loadSession(ctx, s.sessions, conversationID)
}

func (s *ChatService) answer(ctx context.Context, sess *domain.Session, message string) (string, []domain.Document, error) {
	flagged, err := s.llm.Moderate(ctx, message)
	if err != nil {
		return "", nil, upstreamError("moderation", err)
	}
	if flagged {
		return "", nil, newError(ErrorInvalidQuestion, "moderation_flagged", nil)
	}

	docs, err := s.offers.Search(ctx, message, s.limits.SearchTopK)
	if err != nil {
		return "", nil, upstreamError("vector", err)
	}

	pinnedPrompt, model := s.settings.values()
	raw, err := s.llm.Chat(ctx, model, buildPromptMessages(
		promptContext{
			pinnedPrompt: pinnedPrompt,
			documents:    docs,
		},
		message,
		sess.Messages,
		s.limits.MaxHistoryItems,
	), openai.WithTemperature(chatTemperature))
	if err != nil {
		return "", nil, upstreamError("openai", err)
	}
	return raw, docs, nil
}

// releaseTurn clears the pending flag after a failed turn so the user can
// resubmit without waiting for it to go stale.
func (s *ChatService) releaseTurn(ctx context.Context, sess *domain.Session) {
	sess.TurnPendingSince = time.Time{}
	if err := s.sessions.Save(ctx, sess); err != nil {
		observability.Logger(ctx).Warn("release pending turn failed",
			"conversation_id", sess.ConversationID,
			"err", err,
		)
	}
}

func (s *ChatService) openSession(ctx context.Context, conversationID string) (*domain.Session, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return &domain.Session{ConversationID: newUUID()}, nil
	}
	return loadSession(ctx, s.sessions, conversationID)
}

func loadSession(ctx context.Context, store SessionStore, conversationID string) (*domain.Session, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	sess, err := store.Load(ctx, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrorNotFound, "session_not_found", err)
	}
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_read_error", err)
	}
	return sess, nil
}

var newUUID = func() string {
	return uuid.NewString()
}
