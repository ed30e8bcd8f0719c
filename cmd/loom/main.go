// Package main is the loom command line host for a codeloom session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"codeloom/internal/config"
	"codeloom/internal/logging"
	"codeloom/internal/provider"
	"codeloom/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose      bool
	workspace    string
	sessionName  string
	providerName string
	timeout      time.Duration

	// Set in PersistentPreRunE
	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "codeloom - conversational code sessions with versioned artifacts",
	Long: `codeloom keeps a branching conversation with an LLM and tracks every
code block the model produces as a versioned artifact.

Each exchange retrieves recent turns, current code and recalled memories,
composes a prioritized prompt, and records the reply as a new turn.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cfg, err = config.Load(filepath.Join(ws, config.DefaultPath))
		if err != nil {
			return err
		}
		if providerName != "" {
			cfg.Provider.Name = providerName
		}
		if err := logging.Initialize(ws, cfg.Logging.Options()); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		if err := logging.InitAudit(ws); err != nil {
			logger.Warn("audit log unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&sessionName, "session", "s", "default", "Session name")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "Override the configured provider (gemini, echo)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(
		chatCmd,
		historyCmd,
		branchesCmd,
		branchCmd,
		blocksCmd,
		blockCmd,
		contextCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

// openEngine builds and initializes the session engine. Read-only commands
// pass live=false and get an offline provider so no API key is needed.
func openEngine(ctx context.Context, live bool) (*session.Engine, func(), error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, nil, err
	}

	var p provider.Provider = provider.NewEcho()
	if live {
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
		p, err = provider.FromConfig(ctx, cfg.Provider, cfg.GetProviderTimeout())
		if err != nil {
			return nil, nil, err
		}
	}

	mem, closeMem, err := session.OpenMemory(ctx, cfg.Memory, ws)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := closeMem(); err != nil {
			logger.Warn("closing memory store", zap.Error(err))
		}
	}

	eng, err := session.New(cfg, session.Deps{Provider: p, Memory: mem, SessionName: sessionName})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := eng.Initialize(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	logger.Debug("session opened",
		zap.String("session", eng.Name()),
		zap.String("provider", p.Name()),
		zap.Int("turns", len(eng.Graph().Turns())))
	return eng, cleanup, nil
}
