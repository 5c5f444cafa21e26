package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/spigell/prism/internal/ai"
)

const (
	providerName     = "anthropic"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
)

type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client implements ai.Provider for Claude models.
type Client struct {
	messages messageCreator
	model    string
}

// NewClient builds a client. SDK-level retries are disabled because ai.Retrying owns retry policy.
func NewClient(apiKey, model string, opts ...option.RequestOption) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	options := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	client := anthropic.NewClient(options...)
	return &Client{messages: &client.Messages, model: model}, nil
}

func (c *Client) Name() string  { return providerName }
func (c *Client) Model() string { return c.model }

// Complete sends the conversation to the Messages API and joins the text blocks of the reply.
func (c *Client) Complete(ctx context.Context, req ai.Request) (string, error) {
	system, rest := ai.SplitSystem(req.Messages)
	if len(rest) == 0 {
		return "", errors.New("anthropic request needs at least one non-system message")
	}

	messages := make([]anthropic.MessageParam, 0, len(rest))
	for _, msg := range rest {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == ai.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(block))
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   maxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var builder strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && ai.TransientStatus(apiErr.StatusCode) {
		return &ai.TransientError{Status: apiErr.StatusCode, Err: fmt.Errorf("anthropic messages: %w", err)}
	}
	return fmt.Errorf("anthropic messages: %w", err)
}
