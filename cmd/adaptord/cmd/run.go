package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rbright/adaptord/internal/data"
	"github.com/rbright/adaptord/internal/runner"
)

var (
	runInitData    string
	runPathMapping string
	runData        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one unit of work in the foreground",
	Long: `Starts the wrapped application, runs one unit of work, stops it, and
exits. The full lifecycle happens inside this single process; an interrupt
cancels the in-flight run and still stops the application cleanly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}

		logger, closeLogger := newLogger()
		defer closeLogger()

		payload, err := data.Load(runData)
		if err != nil {
			return fmt.Errorf("run data: %w", err)
		}

		a, err := newAdaptor(logger, loaded.Config, runInitData, runPathMapping)
		if err != nil {
			return err
		}
		if err := a.Resolve(); err != nil {
			return err
		}

		return runForeground(cmd.Context(), runner.New(logger, a), payload)
	},
}

// runForeground drives start, run, and stop, translating a signal into a
// cancel of the in-flight run. Cleanup always happens, even on failure.
func runForeground(ctx context.Context, r *runner.Runner, payload map[string]any) (err error) {
	defer func() {
		if cleanupErr := r.Cleanup(context.WithoutCancel(ctx)); cleanupErr != nil {
			err = errors.Join(err, cleanupErr)
		}
	}()

	if err := r.Start(ctx); err != nil {
		return err
	}

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			r.Cancel()
		case <-watchDone:
		}
	}()

	result, runErr := r.Run(ctx, payload)
	stopErr := r.Stop(context.WithoutCancel(ctx))
	if runErr != nil {
		return errors.Join(runErr, stopErr)
	}
	if stopErr != nil {
		return stopErr
	}

	return printResult(result)
}

func printResult(result map[string]any) error {
	if result == nil {
		result = map[string]any{}
	}
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(result)
}

func init() {
	runCmd.Flags().StringVar(&runInitData, "init-data", "", "init data: JSON/YAML literal or file:// reference")
	runCmd.Flags().StringVar(&runPathMapping, "path-mapping-rules", "", "path mapping rules: JSON/YAML literal or file:// reference")
	runCmd.Flags().StringVar(&runData, "run-data", "", "run data: JSON/YAML literal or file:// reference")
	rootCmd.AddCommand(runCmd)
}
