package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all ouroboros configuration.
type Config struct {
	// LLM completion service
	LLM LLMConfig `yaml:"llm"`

	// Capability registry and backends
	Capabilities CapabilitiesConfig `yaml:"capabilities"`

	// Orchestrator bounds
	Loop LoopConfig `yaml:"loop"`

	// Long-term memory blob
	Memory MemoryConfig `yaml:"memory"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:   "ollama",
			Model:      "qwen2.5-coder",
			Timeout:    "300s",
			MaxRetries: 3,
		},

		Capabilities: CapabilitiesConfig{
			ToolsDir:        "./generated_tools",
			Backend:         "go",
			InvokeTimeout:   "60s",
			AllowFileSystem: true,
		},

		Loop: LoopConfig{
			MaxAttempts:   3,
			MaxIterations: 3,
			MaxCycles:     0,
			CyclePause:    "0s",
			Retries:       3,
		},

		Memory: MemoryConfig{
			File: "notes.txt",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. An empty path or a missing
// file yields the defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// Defaults
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("OUROBOROS_PROVIDER"); p != "" {
		c.LLM.Provider = strings.ToLower(p)
	}
	if m := os.Getenv("OUROBOROS_MODEL"); m != "" {
		c.LLM.Model = m
	}

	// Provider-specific endpoints and keys only apply to that provider
	switch c.LLM.Provider {
	case "ollama":
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			c.LLM.BaseURL = normalizeOllamaHost(host)
		}
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
		if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
			c.LLM.BaseURL = url
		}
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	}

	if dir := os.Getenv("OUROBOROS_TOOLS_DIR"); dir != "" {
		c.Capabilities.ToolsDir = dir
	}
	if path := os.Getenv("OUROBOROS_MEMORY_FILE"); path != "" {
		c.Memory.File = path
	}
}

// normalizeOllamaHost accepts OLLAMA_HOST in its bare host:port form.
func normalizeOllamaHost(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/")
	}
	return "http://" + strings.TrimRight(host, "/")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.LLM.validate(); err != nil {
		return err
	}
	if err := c.Capabilities.validate(); err != nil {
		return err
	}
	if err := c.Loop.validate(); err != nil {
		return err
	}
	if c.Memory.File == "" {
		return fmt.Errorf("memory.file must not be empty")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
