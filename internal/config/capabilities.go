package config

import (
	"fmt"
	"time"
)

// CapabilitiesConfig configures the capability registry, its backend and
// the admission policy applied to synthesized Go sources.
type CapabilitiesConfig struct {
	ToolsDir      string `yaml:"tools_dir"`
	Backend       string `yaml:"backend"`        // go, starlark, script
	InvokeTimeout string `yaml:"invoke_timeout"` // 0 disables the per-call timeout

	// Package allow-list knobs for the Go backend safety policy
	AllowFileSystem bool     `yaml:"allow_filesystem"`
	AllowNetworking bool     `yaml:"allow_networking"`
	AllowExec       bool     `yaml:"allow_exec"`
	ExtraPackages   []string `yaml:"extra_packages,omitempty"`
}

// ValidBackends lists all supported capability backends.
var ValidBackends = []string{"go", "starlark", "script"}

// GetInvokeTimeout returns the capability invocation timeout. Zero means
// no timeout.
func (c *Config) GetInvokeTimeout() time.Duration {
	if c.Capabilities.InvokeTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Capabilities.InvokeTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

func (c CapabilitiesConfig) validate() error {
	if c.ToolsDir == "" {
		return fmt.Errorf("capabilities.tools_dir must not be empty")
	}
	if !contains(ValidBackends, c.Backend) {
		return fmt.Errorf("invalid capability backend: %s (valid: %v)", c.Backend, ValidBackends)
	}
	if c.InvokeTimeout != "" {
		d, err := time.ParseDuration(c.InvokeTimeout)
		if err != nil {
			return fmt.Errorf("invalid capabilities.invoke_timeout %q: %w", c.InvokeTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("capabilities.invoke_timeout must not be negative")
		}
	}
	return nil
}
