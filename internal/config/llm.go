package config

import (
	"fmt"
	"time"
)

// LLMConfig configures the completion service.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // ollama, openai, gemini
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"` // transport retries on 429/5xx
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"ollama", "openai", "gemini"}

// GetLLMTimeout returns the per-request timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

func (l LLMConfig) validate() error {
	if !contains(ValidProviders, l.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", l.Provider, ValidProviders)
	}
	if l.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	switch l.Provider {
	case "openai":
		if l.APIKey == "" {
			return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY)")
		}
	case "gemini":
		if l.APIKey == "" {
			return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY)")
		}
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be >= 0, got %d", l.MaxRetries)
	}
	return nil
}
