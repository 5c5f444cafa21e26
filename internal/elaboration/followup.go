package elaboration

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/prism/internal/ai"
	"github.com/spigell/prism/internal/utils"
)

const (
	followUpPrefix      = 300
	followUpTemperature = 0.3
	followUpMaxTokens   = 200
	followUpLabel       = "Follow-up: "

	purposeFollowUp = "follow_up"
)

// Generator asks the model for one probing follow-up question.
type Generator struct {
	llm    ai.Completer
	logger *zap.Logger
}

// NewGenerator builds a follow-up generator. A nil logger discards output.
func NewGenerator(llm ai.Completer, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{llm: llm, logger: logger}
}

// Generate returns the follow-up with its label stripped. Empty or odd output is
// passed through unchanged so the caller sees it.
func (g *Generator) Generate(ctx context.Context, question, answer string) (string, error) {
	raw, err := g.llm.Complete(ctx, ai.Request{
		Purpose:     purposeFollowUp,
		Messages:    []ai.Message{ai.User(followUpPrompt(question, answer))},
		Temperature: followUpTemperature,
		MaxTokens:   followUpMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate follow-up: %w", err)
	}

	followUp := strings.TrimSpace(strings.ReplaceAll(raw, followUpLabel, ""))
	if followUp == "" {
		g.logger.Warn("model returned an empty follow-up question")
	}
	return followUp, nil
}

func followUpPrompt(question, answer string) string {
	return fmt.Sprintf(`Generate ONE follow-up question based on:
Original Q: %s
Response: %s
Keep it relevant and probing. Format: 'Follow-up: ...'`, question, utils.Prefix(answer, followUpPrefix))
}
