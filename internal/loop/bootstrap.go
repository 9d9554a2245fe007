package loop

import (
	"context"
	"fmt"

	"ouroboros/internal/agent"
	"ouroboros/internal/capability"
	"ouroboros/internal/config"
	"ouroboros/internal/llm"
	"ouroboros/internal/logging"
)

// SafetyConfig maps the capabilities section onto the backend policy.
func SafetyConfig(cfg *config.Config) capability.SafetyConfig {
	return capability.SafetyConfig{
		AllowFileSystem: cfg.Capabilities.AllowFileSystem,
		AllowNetworking: cfg.Capabilities.AllowNetworking,
		AllowExec:       cfg.Capabilities.AllowExec,
		ExtraPackages:   cfg.Capabilities.ExtraPackages,
	}
}

// OpenRegistry builds the configured backend and the registry rooted at
// the tools directory.
func OpenRegistry(cfg *config.Config) (*capability.Registry, error) {
	backend, err := capability.NewBackend(cfg.Capabilities.Backend, SafetyConfig(cfg))
	if err != nil {
		return nil, err
	}
	return capability.NewRegistry(cfg.Capabilities.ToolsDir, backend)
}

// Build wires a client, registry, memory store and the four roles from
// configuration.
func Build(ctx context.Context, cfg *config.Config) (*Orchestrator, error) {
	client, err := llm.NewClient(ctx, cfg.LLM, cfg.GetLLMTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}
	return BuildWithClient(cfg, client)
}

// BuildWithClient is Build with a caller-supplied completion client.
func BuildWithClient(cfg *config.Config, client llm.Client) (*Orchestrator, error) {
	registry, err := OpenRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open capability registry: %w", err)
	}
	memory, err := agent.NewMemoryStore(cfg.Memory.File)
	if err != nil {
		return nil, err
	}

	opts := agent.Options{
		Model:         cfg.LLM.Model,
		Retries:       cfg.Loop.Retries,
		InvokeTimeout: cfg.GetInvokeTimeout(),
	}

	logging.Boot("Loop ready: provider=%s model=%s backend=%s tools=%s memory=%s",
		cfg.LLM.Provider, cfg.LLM.Model, registry.Backend().Name(), registry.Dir(), memory.Path())

	return New(
		agent.NewInitiator(client, registry, memory, opts),
		agent.NewPlanner(client, registry, opts),
		agent.NewActor(client, registry, opts),
		agent.NewCritic(client, registry, opts),
		Config{
			MaxAttempts:   cfg.Loop.MaxAttempts,
			MaxIterations: cfg.Loop.MaxIterations,
			MaxCycles:     cfg.Loop.MaxCycles,
			CyclePause:    cfg.GetCyclePause(),
		},
	), nil
}
