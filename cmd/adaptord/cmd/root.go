// Package cmd defines the adaptord command tree.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rbright/adaptord/internal/adaptor"
	"github.com/rbright/adaptord/internal/config"
	"github.com/rbright/adaptord/internal/data"
	"github.com/rbright/adaptord/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "adaptord",
	Short: "Run an application behind a persistent lifecycle backend",
	Long: `adaptord wraps a long-starting application and drives it through a
start/run/stop lifecycle, either in the foreground or behind a reusable
backend process reached over a local control channel.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree under the process signal context.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/adaptord/config.yaml)")
}

// loadConfig loads and validates the runtime config, printing non-fatal
// warnings to stderr.
func loadConfig() (config.Loaded, error) {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return config.Loaded{}, err
	}
	for _, warning := range loaded.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", warning.Message)
	}
	return loaded, nil
}

// newLogger opens the JSONL log file. Logging must never block the command
// itself, so failures degrade to stderr text.
func newLogger() (*slog.Logger, func()) {
	rt, err := logging.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: log file unavailable:", err)
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})), func() {}
	}
	return rt.Logger, func() { _ = rt.Close() }
}

// newAdaptor builds the command adaptor for the configured executable with
// parsed init and path-mapping data.
func newAdaptor(logger *slog.Logger, cfg config.Config, initInput, pathMappingInput string) (*adaptor.CommandAdaptor, error) {
	initData, err := data.Load(initInput)
	if err != nil {
		return nil, fmt.Errorf("init data: %w", err)
	}
	pathMapping, err := data.Load(pathMappingInput)
	if err != nil {
		return nil, fmt.Errorf("path mapping rules: %w", err)
	}

	return adaptor.NewCommand(logger, adaptor.CommandConfig{
		Argv:        cfg.Adaptor.Argv,
		Dir:         cfg.Adaptor.Dir,
		StopTimeout: cfg.StopTimeout.Duration,
	}, initData, pathMapping), nil
}
