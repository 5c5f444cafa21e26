package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/spigell/prism/internal/ai"
)

const (
	providerName = "openai"
	defaultModel = "gpt-4o"
)

type chatCompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements ai.Provider on top of the official OpenAI SDK.
type Client struct {
	completions chatCompletions
	model       string
}

// NewClient builds a client. SDK-level retries are disabled because ai.Retrying owns retry policy.
func NewClient(apiKey, model string, opts ...option.RequestOption) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	options := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	client := openai.NewClient(options...)
	return &Client{completions: &client.Chat.Completions, model: model}, nil
}

func (c *Client) Name() string  { return providerName }
func (c *Client) Model() string { return c.model }

// Complete sends a chat completion request and returns the first choice.
func (c *Client) Complete(ctx context.Context, req ai.Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case ai.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case ai.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", &ai.TransientError{Err: errors.New("openai returned no choices")}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && ai.TransientStatus(apiErr.StatusCode) {
		return &ai.TransientError{Status: apiErr.StatusCode, Err: fmt.Errorf("openai chat completion: %w", err)}
	}
	return fmt.Errorf("openai chat completion: %w", err)
}
