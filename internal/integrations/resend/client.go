// Package resend sends transactional email through the Resend HTTP API.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"property-agent/internal/observability"
)

const defaultBaseURL = "https://api.resend.com"

var excessiveLines = regexp.MustCompile(`\n{3,}`)

// TokenSource yields the API key. *paramstore.Token satisfies it.
type TokenSource interface {
	Value(ctx context.Context) (string, error)
}

// Message is one outbound email. Text is derived from HTML when empty.
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// HTTPStatusError captures non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *HTTPStatusError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("resend: unexpected status %d: %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("resend: unexpected status %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	converter  *md.Converter
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(token TokenSource, opts ...Option) (*Client, error) {
	if token == nil {
		return nil, errors.New("resend: token source must not be nil")
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	converter.Remove("head", "style", "script")

	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		token:      token,
		converter:  converter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PlainText renders an HTML body as markdown-flavoured plain text.
func (c *Client) PlainText(htmlBody string) (string, error) {
	text, err := c.converter.ConvertString(htmlBody)
	if err != nil {
		return "", fmt.Errorf("resend: convert html: %w", err)
	}
	return strings.TrimSpace(excessiveLines.ReplaceAllString(text, "\n\n")), nil
}

// Send delivers msg and returns the provider message id.
func (c *Client) Send(ctx context.Context, msg Message) (id string, err error) {
	if len(msg.To) == 0 {
		return "", errors.New("resend: at least one recipient is required")
	}
	if msg.From == "" {
		return "", errors.New("resend: sender is required")
	}
	start := time.Now()
	defer func() { observability.ObserveUpstream("resend", start, err) }()

	if msg.Text == "" {
		if msg.Text, err = c.PlainText(msg.HTML); err != nil {
			return "", err
		}
	}

	apiKey, err := c.token.Value(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("resend: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("resend: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resend: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		se := &HTTPStatusError{StatusCode: res.StatusCode, Message: string(raw)}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && er.Message != "" {
			se.Name, se.Message = er.Name, er.Message
		}
		return "", se
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("resend: decode response: %w", err)
	}
	return out.ID, nil
}
