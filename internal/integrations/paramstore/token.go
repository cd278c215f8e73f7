package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// tokenPayload is the JSON shape of a secret token parameter.
type tokenPayload struct {
	Token string `json:"token"`
}

// Token is a secret stored as {"token": "..."} that is fetched on first use
// and reused for the rest of the process, including a failed fetch.
type Token struct {
	getter Getter
	name   string

	once sync.Once
	val  string
	err  error
}

func NewToken(getter Getter, name string) *Token {
	return &Token{getter: getter, name: strings.TrimSpace(name)}
}

// Value returns the token, fetching it on the first call.
func (t *Token) Value(ctx context.Context) (string, error) {
	t.once.Do(func() {
		t.val, t.err = fetchToken(ctx, t.getter, t.name)
	})
	return t.val, t.err
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("paramstore: token getter is nil")
	}
	if name == "" {
		return "", errors.New("paramstore: token parameter name is empty")
	}
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch token: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token %q as JSON: %w", name, err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("paramstore: token %q is empty", name)
	}
	return tp.Token, nil
}
