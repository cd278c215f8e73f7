package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"property-agent/internal/integrations/paramstore"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Settings holds the model tunables kept in the parameter store. They are
// loaded on first use; a failed load is retried by the next caller.
type Settings struct {
	params      ParamGetter
	paramPrefix string

	cacheMu      sync.RWMutex
	cacheLoaded  bool
	pinnedPrompt string
	openaiModel  string
}

func NewSettings(p ParamGetter, paramPrefix string) (*Settings, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return &Settings{params: p, paramPrefix: paramPrefix}, nil
}

func (s *Settings) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	pinnedPrompt, openaiModel, err := s.loadSSMParams(ctx)
	if err != nil {
		return err
	}

	s.pinnedPrompt = pinnedPrompt
	s.openaiModel = openaiModel
	s.cacheLoaded = true
	return nil
}

// values returns the cached prompt and model. ensureConfig must have succeeded.
func (s *Settings) values() (pinnedPrompt, openaiModel string) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.pinnedPrompt, s.openaiModel
}

func (s *Settings) loadSSMParams(ctx context.Context) (pinnedPrompt, openaiModel string, err error) {
	openaiModel, err = s.params.GetParameter(ctx, s.paramPrefix+"/config/openai_model")
	if err != nil {
		return "", "", fmt.Errorf("usecase: load openai model: %w", err)
	}
	if strings.TrimSpace(openaiModel) == "" {
		return "", "", errors.New("usecase: load openai model: empty value")
	}
	// The pinned prompt is optional.
	pinnedPrompt, err = s.params.GetParameter(ctx, s.paramPrefix+"/pinned_prompt")
	if err != nil && !errors.Is(err, paramstore.ErrNotFound) {
		return "", "", fmt.Errorf("usecase: load pinned prompt: %w", err)
	}
	return pinnedPrompt, strings.TrimSpace(openaiModel), nil
}
