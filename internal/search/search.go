// Package search provides the live web search collaborator for nearby queries.
//
// It calls a Serper-style JSON search API and condenses the organic
// results into a text block suitable as model context. Search is a
// best-effort augmentation: callers treat failures as "no results".
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Default configuration constants
const (
	// DefaultEndpoint is the search API endpoint.
	DefaultEndpoint = "https://google.serper.dev/search"
	// DefaultMaxResults caps how many organic results feed the model context.
	DefaultMaxResults = 5
	// DefaultTimeout bounds one search call including retries.
	DefaultTimeout = 15 * time.Second
	// retryMax is the number of retries for transient API failures.
	retryMax = 2
)

// Opts holds configuration options for the search client.
type Opts struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Timeout    time.Duration
}

// Option defines a functional option for search client configuration.
type Option func(*Opts)

// WithAPIKey sets the search API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithEndpoint overrides the search API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(o *Opts) { o.Endpoint = endpoint }
}

// WithMaxResults sets how many results are kept.
func WithMaxResults(n int) Option {
	return func(o *Opts) { o.MaxResults = n }
}

// WithTimeout bounds a single search call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client calls the web search API.
type Client struct {
	apiKey     string
	endpoint   string
	maxResults int
	http       *retryablehttp.Client
}

// Searcher is the search interface consumed by the bot.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// organicResult is one entry of the API's organic results array.
type organicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Organic []organicResult `json:"organic"`
}

// NewClient creates a search client. The API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Endpoint:   DefaultEndpoint,
		MaxResults: DefaultMaxResults,
		Timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("search API key not set")
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil

	slog.Debug("search.NewClient: client created", "endpoint", cfg.Endpoint, "maxResults", cfg.MaxResults)
	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		maxResults: cfg.MaxResults,
		http:       rc,
	}, nil
}

// Search runs one web search and returns the results as a text block,
// one "title: snippet (link)" line per result. An empty string with no
// error means the API returned no organic results.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return "", fmt.Errorf("failed to encode search query: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("search.Search: request failed", "error", err, "query", query)
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("search.Search: non-OK status", "status", resp.StatusCode, "query", query)
		return "", fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read search response: %w", err)
	}
	var parsed searchResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}

	results := parsed.Organic
	if len(results) > c.maxResults {
		results = results[:c.maxResults]
	}
	var lines []string
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", r.Title, r.Snippet, r.Link))
	}

	slog.Debug("search.Search: results fetched", "query", query, "count", len(lines))
	return strings.Join(lines, "\n"), nil
}
