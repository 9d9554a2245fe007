package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ouroboros/internal/config"
	"ouroboros/internal/logging"
	"ouroboros/internal/loop"
)

// cli holds the state shared by every command.
type cli struct {
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "ouroboros",
		Short: "ouroboros - a self-extending agent loop",
		Long: `ouroboros invents its own tasks, plans them, and solves each subtask by
invoking or synthesizing a capability. A critic judges every attempt and
revokes freshly created capabilities that do not hold up. Outcomes are
folded into a long-term memory file between cycles.

Run without arguments to start the loop. It stops on SIGINT/SIGTERM or
after loop.max_cycles cycles.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
		RunE: c.runLoop,
	}

	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to a YAML config file (default: built-in defaults)")

	rootCmd.AddCommand(c.capabilitiesCmd())
	return rootCmd
}

// setup loads configuration and initializes logging.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.cfg = cfg

	logger, err := logging.Initialize(cfg.Logging.Options())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.logger = logger
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func (c *cli) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			c.logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// runLoop runs cycles until interrupted.
func (c *cli) runLoop(cmd *cobra.Command, args []string) error {
	ctx, cancel := c.signalContext()
	defer cancel()

	orchestrator, err := loop.Build(ctx, c.cfg)
	if err != nil {
		return err
	}

	c.logger.Info("Starting loop",
		zap.String("provider", c.cfg.LLM.Provider),
		zap.String("model", c.cfg.LLM.Model),
		zap.String("backend", c.cfg.Capabilities.Backend),
		zap.Int("max_attempts", c.cfg.Loop.MaxAttempts),
		zap.Int("max_iterations", c.cfg.Loop.MaxIterations),
		zap.Int("max_cycles", c.cfg.Loop.MaxCycles))

	if err := orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	c.logger.Info("Loop stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
