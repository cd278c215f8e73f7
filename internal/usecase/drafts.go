package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"property-agent/internal/domain"
	"property-agent/internal/emaildraft"
	"property-agent/internal/integrations/openai"
)

const (
	draftTemperature = 0.3
	draftMaxTokens   = 800
)

var htmlFence = regexp.MustCompile("(?is)```html(.*?)```")

// LLMDrafts writes and revises offer emails with the completion model.
type LLMDrafts struct {
	settings *Settings
	llm      LLMClient
}

func NewLLMDrafts(settings *Settings, llm LLMClient) (*LLMDrafts, error) {
	if settings == nil {
		return nil, errors.New("usecase: settings must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	return &LLMDrafts{settings: settings, llm: llm}, nil
}

func (d *LLMDrafts) GenerateDraft(ctx context.Context, req emaildraft.DraftRequest) (string, error) {
	list, err := offersJSON(req.Offers)
	if err != nil {
		return "", err
	}
	return d.complete(ctx, draftSystemPrompt, buildDraftPrompt(req.Form, list))
}

func (d *LLMDrafts) ReviseDraft(ctx context.Context, req emaildraft.RevisionRequest) (string, error) {
	return d.complete(ctx, revisionSystemPrompt, buildRevisionPrompt(req.Draft, req.Instruction))
}

func (d *LLMDrafts) complete(ctx context.Context, system, prompt string) (string, error) {
	if err := d.settings.ensureConfig(ctx); err != nil {
		return "", err
	}
	_, model := d.settings.values()
	raw, err := d.llm.Chat(ctx, model, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: prompt},
	}, openai.WithTemperature(draftTemperature), openai.WithMaxTokens(draftMaxTokens))
	if err != nil {
		return "", err
	}
	return unwrapHTML(raw), nil
}

// unwrapHTML returns the body of the first ```html fence, or the whole reply
// when there is none.
func unwrapHTML(raw string) string {
	if m := htmlFence.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}
