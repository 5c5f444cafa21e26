package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/spigell/prism/internal/ai"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.5-flash"

	roleUser  = "user"
	roleModel = "model"

	// Requests at or under this output budget run without thinking, otherwise
	// thought tokens can use up the whole budget before any text is produced.
	shortReplyTokens = 1024
)

type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client to provide plain text completions.
type Generator struct {
	models    contentModels
	modelName string
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	return &Generator{models: client.Models, modelName: model}, nil
}

func (g *Generator) Name() string { return providerName }

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

// Complete sends the conversation to Gemini and returns the joined textual parts of the answer.
func (g *Generator) Complete(ctx context.Context, req ai.Request) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	system, messages := ai.SplitSystem(req.Messages)
	if len(messages) == 0 {
		return "", errors.New("gemini request needs at least one non-system message")
	}

	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := roleUser
		if msg.Role == ai.RoleAssistant {
			role = roleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: msg.Content}}})
	}

	temperature := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	model := g.modelName
	if req.Model != "" {
		model = req.Model
	}

	if req.MaxTokens > 0 && req.MaxTokens <= shortReplyTokens && canDisableThinking(model) {
		budget := int32(0)
		config.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &budget,
		}
	}

	resp, err := g.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", classify(err)
	}

	return collectText(resp)
}

func collectText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned nil response")
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("gemini api blocked the prompt: %s", resp.PromptFeedback.BlockReason)
		}
		return "", &ai.TransientError{Err: errors.New("gemini api returned no candidates")}
	}

	var (
		builder strings.Builder
		reason  genai.FinishReason
	)
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if reason == "" {
			reason = candidate.FinishReason
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		// Only the first usable candidate is answered.
		if builder.Len() > 0 {
			break
		}
	}

	output := strings.TrimSpace(builder.String())
	if output != "" {
		return output, nil
	}

	// A finished empty reply is an answer; sending the same request again
	// would end the same way.
	switch reason {
	case "", genai.FinishReasonStop, genai.FinishReasonMaxTokens:
		return "", nil
	default:
		return "", fmt.Errorf("gemini api returned no text: finish reason %s", reason)
	}
}

// canDisableThinking reports whether the model accepts a zero thinking budget.
// Pro models always think.
func canDisableThinking(model string) bool {
	model = strings.ToLower(model)
	return strings.HasPrefix(model, "gemini-2.5") && !strings.Contains(model, "pro")
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && ai.TransientStatus(apiErr.Code) {
		return &ai.TransientError{Status: apiErr.Code, Err: fmt.Errorf("generate content: %w", err)}
	}
	return fmt.Errorf("generate content: %w", err)
}
