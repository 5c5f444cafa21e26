// Package elaboration judges interview answers and generates probing follow-up questions.
package elaboration

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/spigell/prism/internal/ai"
	"github.com/spigell/prism/internal/utils"
)

const (
	// MinWords is the word count below which an answer always needs elaboration.
	MinWords = 30

	assessPrefix      = 500
	assessTemperature = 0.3
	assessMaxTokens   = 200

	purposeAssess = "assess"
)

// Policy decides how the model's YES/NO verdict is read.
type Policy int

const (
	// PolicyFailOpen treats only the exact output "YES" as needing elaboration.
	// Anything else, malformed output included, counts as an adequate answer.
	PolicyFailOpen Policy = iota
	// PolicyStrict reads the verdict case-insensitively and treats anything that
	// is not a clear NO as needing elaboration.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyFailOpen:
		return "fail-open"
	case PolicyStrict:
		return "strict"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Verdict interprets raw model output under the policy.
func (p Policy) Verdict(raw string) bool {
	if p == PolicyStrict {
		words := strings.Fields(strings.ToUpper(raw))
		if len(words) == 0 {
			return true
		}
		first := strings.TrimFunc(words[0], func(r rune) bool { return !unicode.IsLetter(r) })
		return first != "NO"
	}
	return raw == "YES"
}

// Assessor decides whether an answer is too thin to move on.
type Assessor struct {
	llm    ai.Completer
	policy Policy
	logger *zap.Logger
}

// NewAssessor builds an assessor. A nil logger discards output.
func NewAssessor(llm ai.Completer, policy Policy, logger *zap.Logger) *Assessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assessor{llm: llm, policy: policy, logger: logger}
}

// NeedsElaboration reports true for answers under MinWords without calling the model.
// Longer answers are judged by the model and read according to the policy.
func (a *Assessor) NeedsElaboration(ctx context.Context, answer string) (bool, error) {
	words := utils.WordCount(answer)
	if words < MinWords {
		a.logger.Debug("answer is too short, elaboration needed", zap.Int("words", words))
		return true, nil
	}

	raw, err := a.llm.Complete(ctx, ai.Request{
		Purpose:     purposeAssess,
		Messages:    []ai.Message{ai.User(assessPrompt(answer))},
		Temperature: assessTemperature,
		MaxTokens:   assessMaxTokens,
	})
	if err != nil {
		return false, fmt.Errorf("assess answer: %w", err)
	}

	verdict := a.policy.Verdict(raw)
	a.logger.Debug("answer assessed",
		zap.Int("words", words),
		zap.String("policy", a.policy.String()),
		zap.String("raw", utils.TruncateForLog(raw, 80)),
		zap.Bool("needs_elaboration", verdict),
	)
	return verdict, nil
}

func assessPrompt(answer string) string {
	return fmt.Sprintf(`Assess if this response needs follow-up (Answer only YES/NO):
Response: %s
Consider: Specific examples? Emotional depth? Concrete details?`, utils.Prefix(answer, assessPrefix))
}
