package llm

import (
	"context"
	"fmt"
	"time"

	"ouroboros/internal/config"
)

// NewClient builds the client selected by the llm config section.
func NewClient(ctx context.Context, cfg config.LLMConfig, timeout time.Duration) (Client, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaClient(OllamaConfig{
			Endpoint:   cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: %w", ErrAPIKeyMissing)
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
