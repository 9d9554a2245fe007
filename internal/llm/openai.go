package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ouroboros/internal/logging"
)

// OpenAIClient implements Client for any OpenAI-compatible
// /chat/completions endpoint.
type OpenAIClient struct {
	apiKey    string
	baseURL   string
	model     string
	transport *httpTransport
}

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int // 0 uses DefaultMaxRetries; negative disables retries
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &OpenAIClient{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		transport: newHTTPTransport(cfg.Timeout, cfg.MaxRetries),
	}
}

// Complete sends the conversation and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, model string) (string, error) {
	if c.apiKey == "" {
		return "", ErrAPIKeyMissing
	}
	if model == "" {
		model = c.model
	}

	startTime := time.Now()
	logging.LLMDebug("[OpenAI] Complete: model=%s messages=%d", model, len(messages))

	body, err := c.transport.postJSON(ctx, c.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.apiKey},
		openAIRequest{Model: model, Messages: messages, Temperature: 0.1},
	)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	logging.LLMDebug("[OpenAI] Complete: completed in %v response_len=%d", time.Since(startTime), len(content))
	return content, nil
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}
