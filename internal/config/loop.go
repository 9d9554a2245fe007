package config

import (
	"fmt"
	"time"
)

// LoopConfig bounds the orchestrator.
type LoopConfig struct {
	MaxAttempts   int    `yaml:"max_attempts"`   // Actor/Critic rounds per subtask per iteration
	MaxIterations int    `yaml:"max_iterations"` // plan executions per cycle
	MaxCycles     int    `yaml:"max_cycles"`     // 0 = run until cancelled
	CyclePause    string `yaml:"cycle_pause"`
	Retries       int    `yaml:"retries"` // structured-reply parse attempts
}

// GetCyclePause returns the pause between cycles.
func (c *Config) GetCyclePause() time.Duration {
	d, err := time.ParseDuration(c.Loop.CyclePause)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func (l LoopConfig) validate() error {
	if l.MaxAttempts < 1 {
		return fmt.Errorf("loop.max_attempts must be >= 1, got %d", l.MaxAttempts)
	}
	if l.MaxIterations < 1 {
		return fmt.Errorf("loop.max_iterations must be >= 1, got %d", l.MaxIterations)
	}
	if l.MaxCycles < 0 {
		return fmt.Errorf("loop.max_cycles must be >= 0, got %d", l.MaxCycles)
	}
	if l.Retries < 1 {
		return fmt.Errorf("loop.retries must be >= 1, got %d", l.Retries)
	}
	return nil
}
