package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ouroboros/internal/logging"
)

// =============================================================================
// OLLAMA CHAT CLIENT
// =============================================================================

// OllamaClient talks to a local Ollama server through /api/chat.
type OllamaClient struct {
	endpoint  string
	model     string
	transport *httpTransport
}

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	Endpoint   string
	Model      string
	Timeout    time.Duration
	MaxRetries int // 0 uses DefaultMaxRetries; negative disables retries
}

// NewOllamaClient creates a new Ollama chat client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &OllamaClient{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		model:     cfg.Model,
		transport: newHTTPTransport(cfg.Timeout, cfg.MaxRetries),
	}
}

// Complete sends the conversation and returns the assistant message.
func (c *OllamaClient) Complete(ctx context.Context, messages []Message, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	timer := logging.StartTimer(logging.CategoryLLM, "ollama "+model)
	defer timer.Stop()

	body, err := c.transport.postJSON(ctx, c.endpoint+"/api/chat", nil, ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}

	var resp ollamaChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", resp.Error)
	}
	if resp.Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Message.Content, nil
}

// Name returns the client name.
func (c *OllamaClient) Name() string {
	return fmt.Sprintf("ollama:%s", c.model)
}

// =============================================================================
// OLLAMA API TYPES
// =============================================================================

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}
