// Package vector talks to an Upstash Vector compatible REST index that embeds
// raw text server-side.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"property-agent/internal/observability"
)

// TokenSource yields the REST token. *paramstore.Token satisfies it.
type TokenSource interface {
	Value(ctx context.Context) (string, error)
}

// Vector is one stored entry.
type Vector struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score,omitempty"`
	Data     string         `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Upsert is one entry to embed and store.
type Upsert struct {
	ID       string         `json:"id"`
	Data     string         `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Page is one page of a range scan. An empty NextCursor ends the scan.
type Page struct {
	NextCursor string   `json:"nextCursor"`
	Vectors    []Vector `json:"vectors"`
}

type queryRequest struct {
	Data            string `json:"data"`
	TopK            int    `json:"topK"`
	IncludeMetadata bool   `json:"includeMetadata"`
	IncludeData     bool   `json:"includeData"`
}

type rangeRequest struct {
	Cursor          string `json:"cursor"`
	Limit           int    `json:"limit"`
	IncludeMetadata bool   `json:"includeMetadata"`
	IncludeData     bool   `json:"includeData"`
}

type updateRequest struct {
	ID                 string         `json:"id"`
	Metadata           map[string]any `json:"metadata"`
	MetadataUpdateMode string         `json:"metadataUpdateMode"`
}

type idsRequest struct {
	IDs             []string `json:"ids"`
	IncludeMetadata bool     `json:"includeMetadata,omitempty"`
	IncludeData     bool     `json:"includeData,omitempty"`
}

// envelope wraps every successful response.
type envelope[T any] struct {
	Result T      `json:"result"`
	Error  string `json:"error"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("vector: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(baseURL string, token TokenSource, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("vector: base url must not be empty")
	}
	if token == nil {
		return nil, errors.New("vector: token source must not be nil")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Upsert embeds and stores entries, replacing any with the same id.
func (c *Client) Upsert(ctx context.Context, entries []Upsert) error {
	if len(entries) == 0 {
		return nil
	}
	var out string
	return c.call(ctx, "upsert", http.MethodPost, "/upsert-data", entries, &out)
}

// Query returns the topK entries most similar to text, best first.
func (c *Client) Query(ctx context.Context, text string, topK int) ([]Vector, error) {
	var out []Vector
	err := c.call(ctx, "query", http.MethodPost, "/query-data", queryRequest{
		Data: text, TopK: topK, IncludeMetadata: true, IncludeData: true,
	}, &out)
	return out, err
}

// Range returns one page of entries starting at cursor ("0" for the first page).
func (c *Client) Range(ctx context.Context, cursor string, limit int) (Page, error) {
	if cursor == "" {
		cursor = "0"
	}
	var out Page
	err := c.call(ctx, "range", http.MethodPost, "/range", rangeRequest{
		Cursor: cursor, Limit: limit, IncludeMetadata: true, IncludeData: true,
	}, &out)
	return out, err
}

// UpdateMetadata overwrites the metadata of id and leaves its embedding alone.
// It reports whether an entry was updated.
func (c *Client) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) (bool, error) {
	var out struct {
		Updated int `json:"updated"`
	}
	err := c.call(ctx, "update", http.MethodPost, "/update", updateRequest{
		ID: id, Metadata: metadata, MetadataUpdateMode: "OVERWRITE",
	}, &out)
	return out.Updated > 0, err
}

// Delete removes ids and returns how many existed.
func (c *Client) Delete(ctx context.Context, ids []string) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	err := c.call(ctx, "delete", http.MethodDelete, "/delete", idsRequest{IDs: ids}, &out)
	return out.Deleted, err
}

// Fetch returns the entries for ids in order; missing ids yield nil.
func (c *Client) Fetch(ctx context.Context, ids []string) ([]*Vector, error) {
	var out []*Vector
	err := c.call(ctx, "fetch", http.MethodPost, "/fetch", idsRequest{IDs: ids, IncludeMetadata: true, IncludeData: true}, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, op, method, path string, in any, out any) (err error) {
	start := time.Now()
	defer func() { observability.ObserveUpstream("vector", start, err) }()

	token, err := c.token.Value(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("vector: %s: marshal request: %w", op, err)
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("vector: %s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vector: %s: request failed: %w", op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("vector: %s: %w", op, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)})
	}

	env := envelope[json.RawMessage]{}
	if err := json.NewDecoder(io.LimitReader(res.Body, 8<<20)).Decode(&env); err != nil {
		return fmt.Errorf("vector: %s: decode response: %w", op, err)
	}
	if env.Error != "" {
		return fmt.Errorf("vector: %s: %s", op, env.Error)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("vector: %s: decode result: %w", op, err)
	}
	return nil
}
