package config

import "ouroboros/internal/logging"

// MemoryConfig configures the long-term memory file.
type MemoryConfig struct {
	File string `yaml:"file"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file,omitempty"`
}

// Options converts the section into logging.Initialize options.
func (l LoggingConfig) Options() logging.Options {
	return logging.Options{Level: l.Level, Format: l.Format, File: l.File}
}
