package profile

import (
	"encoding/json"
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"github.com/spigell/prism/internal/interview"
)

// Counter counts prompt tokens.
type Counter interface {
	Count(text string) int
}

// TokenCounter counts tokens with the GPT-4 encoding, which is close enough for
// every supported provider when sizing prompts.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter loads the GPT-4 codec.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count falls back to a four-characters-per-token estimate if encoding fails.
func (c *TokenCounter) Count(text string) int {
	if c == nil || c.codec == nil {
		return len(text) / 4
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// phaseGroup is the turns of one phase in transcript order.
type phaseGroup struct {
	name  string
	turns []interview.Turn
}

// groupByPhase keeps phases in order of first appearance.
func groupByPhase(turns []interview.Turn) []phaseGroup {
	index := make(map[string]int)
	var groups []phaseGroup
	for _, t := range turns {
		i, ok := index[t.Phase]
		if !ok {
			i = len(groups)
			index[t.Phase] = i
			groups = append(groups, phaseGroup{name: t.Phase})
		}
		groups[i].turns = append(groups[i].turns, t)
	}
	return groups
}

// chunkTurns splits turns into consecutive chunks of at most size turns whose
// rendering stays within maxTokens. A single oversized turn forms its own chunk.
func chunkTurns(turns []interview.Turn, size, maxTokens int, counter Counter) [][]interview.Turn {
	var chunks [][]interview.Turn
	var current []interview.Turn

	for _, t := range turns {
		candidate := append(append([]interview.Turn(nil), current...), t)
		overSize := size > 0 && len(candidate) > size
		overBudget := maxTokens > 0 && counter != nil && len(current) > 0 && counter.Count(render(candidate)) > maxTokens
		if overSize || overBudget {
			chunks = append(chunks, current)
			current = []interview.Turn{t}
			continue
		}
		current = candidate
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func render(turns []interview.Turn) string {
	data, err := json.Marshal(turns)
	if err != nil {
		return ""
	}
	return string(data)
}
