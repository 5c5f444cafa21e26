// Package search looks up fresh web context for recommendation prompts.
package search

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

	"go.uber.org/zap"

	"github.com/spigell/prism/internal/ai"
	"github.com/spigell/prism/internal/utils"
)

const (
	defaultEndpoint    = "https://api.tavily.com/search"
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("web search api key is not configured")

// Result is one web search hit.
type Result struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

// Searcher runs a bounded web search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Tavily searches the web through the Tavily API. Answers are disabled so the
// raw results reach the prompt.
type Tavily struct {
	apiKey      string
	endpoint    string
	httpClient  *http.Client
	maxAttempts int
	logger      *zap.Logger
	wait        func(ctx context.Context, d time.Duration) error
}

// Option configures Tavily.
type Option func(*Tavily)

// WithEndpoint overrides the API URL.
func WithEndpoint(endpoint string) Option {
	return func(t *Tavily) { t.endpoint = endpoint }
}

// WithHTTPClient replaces the default client with its 30s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tavily) { t.httpClient = c }
}

// WithMaxAttempts bounds retries of transient failures.
func WithMaxAttempts(n int) Option {
	return func(t *Tavily) { t.maxAttempts = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tavily) { t.logger = l }
}

// NewTavily builds a Tavily searcher.
func NewTavily(apiKey string, opts ...Option) *Tavily {
	t := &Tavily{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: defaultEndpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxAttempts: defaultMaxAttempts,
		logger:      zap.NewNop(),
		wait:        utils.WaitFor,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.maxAttempts <= 0 {
		t.maxAttempts = 1
	}
	return t
}

type tavilyRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Search returns at most maxResults hits. Transient failures are retried with backoff.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if t.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if maxResults <= 0 {
		return nil, nil
	}

	body, err := json.Marshal(tavilyRequest{
		Query:         query,
		SearchDepth:   "basic",
		IncludeAnswer: false,
		MaxResults:    maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		results, err := t.do(ctx, body)
		if err == nil {
			if len(results) > maxResults {
				results = results[:maxResults]
			}
			t.logger.Debug("web search completed", zap.String("query", query), zap.Int("results", len(results)))
			return results, nil
		}
		if ctx.Err() != nil || !ai.IsTransient(err) {
			return nil, err
		}

		lastErr = err
		if attempt+1 == t.maxAttempts {
			break
		}
		delay := utils.Backoff(defaultBaseDelay, defaultMaxDelay, attempt)
		t.logger.Warn("transient web search failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := t.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("web search failed after %d attempts: %w", t.maxAttempts, lastErr)
}

func (t *Tavily) do(ctx context.Context, body []byte) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// Network errors and client timeouts are worth another try.
		return nil, &ai.TransientError{Err: fmt.Errorf("search request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("tavily api error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if ai.TransientStatus(resp.StatusCode) {
			return nil, &ai.TransientError{Status: resp.StatusCode, Err: err}
		}
		return nil, err
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}
	return results, nil
}
