// Package llm implements the completion clients used by the agent roles.
// A Client takes an ordered list of role-tagged messages and returns the
// assistant's text; structured replies are recovered from that text with
// ExtractJSON and ExtractCode.
package llm

import (
	"context"
	"time"
)

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat-style conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Client is a chat-completion service. An empty model selects the
// client's configured default.
type Client interface {
	Complete(ctx context.Context, messages []Message, model string) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, messages []Message, model string) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, messages []Message, model string) (string, error) {
	return f(ctx, messages, model)
}

// Defaults shared by the HTTP providers.
const (
	DefaultModel      = "qwen2.5-coder"
	DefaultOllamaURL  = "http://localhost:11434"
	DefaultOpenAIURL  = "https://api.openai.com/v1"
	DefaultMaxRetries = 3
	DefaultTimeout    = 300 * time.Second
)
