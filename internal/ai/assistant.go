package ai

import (
	"context"
	"errors"
	"strings"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged chat message.
type Message struct {
	Role    string
	Content string
}

// Request describes one text completion call.
type Request struct {
	// Purpose labels the call in logs and metrics (assess, follow_up, profile, recommend).
	Purpose string
	// Model overrides the provider default when set.
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completer turns a request into plain text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Provider is a Completer backed by a concrete language model service.
type Provider interface {
	Completer
	Name() string
	Model() string
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Validate checks that the request carries at least one non-empty message.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("request has no messages")
	}
	for _, msg := range r.Messages {
		if strings.TrimSpace(msg.Content) != "" {
			return nil
		}
	}
	return errors.New("request messages are empty")
}

// SplitSystem joins all system messages into one instruction and returns the rest in order.
// Gemini and Anthropic take the system prompt out of band.
func SplitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, text)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}
