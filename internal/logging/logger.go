// Package logging provides category loggers for ouroboros backed by zap.
// Every subsystem logs through logging.Get(Category) so log lines carry a
// "logger" field naming the subsystem. Until Initialize is called all
// loggers are no-ops, which keeps tests quiet.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and configuration
	CategoryLoop      Category = "loop"      // Orchestrator state machine
	CategoryActor     Category = "actor"     // Capability decision, synthesis, invocation
	CategoryCritic    Category = "critic"    // Verdicts and revocation
	CategoryPlanner   Category = "planner"   // Plan and replan
	CategoryInitiator Category = "initiator" // Task generation and memory fold
	CategoryRegistry  Category = "registry"  // Capability persistence and loading
	CategoryLLM       Category = "llm"       // Completion service round-trips
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	File   string // optional extra output path
}

// Logger wraps a sugared zap logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	root      = zap.NewNop()
	rootMu    sync.RWMutex
	loggers   = make(map[Category]*Logger)
	loggersMu sync.Mutex
)

// Initialize builds the root zap logger from opts and installs it.
func Initialize(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(opts.Format, "console") {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	SetLogger(logger)
	return logger, nil
}

// SetLogger replaces the root logger and drops cached category loggers.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rootMu.Lock()
	root = logger
	rootMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

// Root returns the current root logger.
func Root() *zap.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Sync flushes buffered entries of the root logger.
func Sync() {
	_ = Root().Sync()
}

// Get returns (or creates) the logger for the given category.
func Get(category Category) *Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    Root().Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Debug logs a formatted debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs a formatted informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a formatted warning.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs a formatted error.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Loop logs to the loop category
func Loop(format string, args ...interface{}) {
	Get(CategoryLoop).Info(format, args...)
}

// LoopDebug logs debug to the loop category
func LoopDebug(format string, args ...interface{}) {
	Get(CategoryLoop).Debug(format, args...)
}

// Actor logs to the actor category
func Actor(format string, args ...interface{}) {
	Get(CategoryActor).Info(format, args...)
}

// ActorDebug logs debug to the actor category
func ActorDebug(format string, args ...interface{}) {
	Get(CategoryActor).Debug(format, args...)
}

// Critic logs to the critic category
func Critic(format string, args ...interface{}) {
	Get(CategoryCritic).Info(format, args...)
}

// CriticDebug logs debug to the critic category
func CriticDebug(format string, args ...interface{}) {
	Get(CategoryCritic).Debug(format, args...)
}

// Registry logs to the registry category
func Registry(format string, args ...interface{}) {
	Get(CategoryRegistry).Info(format, args...)
}

// RegistryDebug logs debug to the registry category
func RegistryDebug(format string, args ...interface{}) {
	Get(CategoryRegistry).Debug(format, args...)
}

// LLMDebug logs debug to the llm category
func LLMDebug(format string, args ...interface{}) {
	Get(CategoryLLM).Debug(format, args...)
}

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer starts timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
