// Package recommend turns a stored profile and a free-text query into three
// personalized suggestions.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/prism/internal/ai"
	"github.com/spigell/prism/internal/search"
	"github.com/spigell/prism/internal/utils"
)

const (
	defaultMaxResults = 3

	recommendTemperature = 0.7
	purposeRecommend     = "recommend"

	systemPrompt = "You're a recommendation engine that creates hyper-personalized suggestions."
)

var (
	// ErrEmptyQuery rejects blank queries.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrNoProfile is returned when there is no profile to personalize against.
	ErrNoProfile = errors.New("profile is empty")
)

// Engine builds recommendation prompts. The searcher is optional.
type Engine struct {
	llm        ai.Completer
	searcher   search.Searcher
	maxResults int
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine builds an engine. A nil searcher disables web context.
func NewEngine(llm ai.Completer, searcher search.Searcher, maxResults int, logger *zap.Logger) *Engine {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{llm: llm, searcher: searcher, maxResults: maxResults, logger: logger, now: time.Now}
}

// Recommend returns the model's text unparsed. Web search is best-effort.
func (e *Engine) Recommend(ctx context.Context, profile map[string]any, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if len(profile) == 0 {
		return "", ErrNoProfile
	}

	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}

	webContext := e.webContext(ctx, query)

	out, err := e.llm.Complete(ctx, ai.Request{
		Purpose: purposeRecommend,
		Messages: []ai.Message{
			ai.System(systemPrompt),
			ai.User(recommendPrompt(string(profileJSON), query, webContext)),
		},
		Temperature: recommendTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate recommendations: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (e *Engine) webContext(ctx context.Context, query string) string {
	if e.searcher == nil {
		return ""
	}

	searchQuery := fmt.Sprintf("%s recommendations %d", query, e.now().Year())
	results, err := e.searcher.Search(ctx, searchQuery, e.maxResults)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("web search failed, continuing without web context",
				zap.String("query", searchQuery),
				zap.Error(err),
			)
		}
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s)\n   %s\n", i+1, r.Title, r.URL, utils.Prefix(strings.TrimSpace(r.Content), 500))
	}
	return strings.TrimRight(b.String(), "\n")
}

func recommendPrompt(profile, query, webContext string) string {
	if webContext == "" {
		webContext = "No web results available."
	}
	return fmt.Sprintf(`**Task**: Generate exactly 3 highly personalized recommendations based on:

**User Profile**:
%s

**User Query**:
%q

**Web Context** (for reference only):
%s

**Requirements**:
1. Each recommendation must directly reference profile details
2. Blend the user's core values and preferences
3. Only suggest what is asked for, with no extra advice.
4. Format as numbered items with:
   - Title
   - Why it matches:

**Output Example**:
1. [Creative Project Tool]
   - Why: Matches your love for storytelling and freelance work
   - Try: Notion's creative templates for content planning

Generate your response:`, profile, query, webContext)
}
