package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rbright/adaptord/internal/backend"
	"github.com/rbright/adaptord/internal/config"
	"github.com/rbright/adaptord/internal/data"
	"github.com/rbright/adaptord/internal/frontend"
	"github.com/rbright/adaptord/internal/ipc"
	"github.com/rbright/adaptord/internal/runner"
)

var (
	daemonConnFile    string
	daemonInitData    string
	daemonPathMapping string
	daemonRunData     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Drive a persistent backend over the control channel",
	Long: `Daemon mode splits the lifecycle across processes: a backend owns the
wrapped application and short-lived frontends relay one command each. The
connection file names the rendezvous point and must be passed to every
subcommand of one session.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Launch a backend and start the wrapped application",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}

		logger, closeLogger := newLogger()
		defer closeLogger()

		// Fail fast on a missing executable before paying for a backend
		// process that could never start it.
		a, err := newAdaptor(logger, loaded.Config, daemonInitData, daemonPathMapping)
		if err != nil {
			return err
		}
		if err := a.Resolve(); err != nil {
			return err
		}

		client, err := newClient(logger, loaded)
		if err != nil {
			return err
		}

		spawnArgs := []string{}
		if cfgFile != "" {
			spawnArgs = append(spawnArgs, "--config", cfgFile)
		}
		if daemonInitData != "" {
			spawnArgs = append(spawnArgs, "--init-data", daemonInitData)
		}
		if daemonPathMapping != "" {
			spawnArgs = append(spawnArgs, "--path-mapping-rules", daemonPathMapping)
		}
		if err := client.SpawnBackend(cmd.Context(), frontend.SpawnOptions{Args: spawnArgs}); err != nil {
			return err
		}

		if err := client.Start(cmd.Context()); err != nil {
			// The backend is up but useless; take it down again.
			return errors.Join(err, client.Shutdown(context.WithoutCancel(cmd.Context())))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "backend started; connection file:", client.ConnectionFile())
		return nil
	},
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one unit of work on the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := daemonClient()
		if err != nil {
			return err
		}

		payload, err := loadDaemonRunData()
		if err != nil {
			return err
		}

		result, err := client.Run(cmd.Context(), payload)
		if err != nil {
			if cmd.Context().Err() != nil {
				// Interrupted while waiting; tell the backend to cancel the
				// in-flight run before giving up.
				cancelErr := client.Cancel(context.WithoutCancel(cmd.Context()))
				return errors.Join(err, cancelErr)
			}
			return err
		}
		return printResult(result)
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the wrapped application and shut the backend down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := daemonClient()
		if err != nil {
			return err
		}

		stopErr := client.Stop(cmd.Context())
		shutdownErr := client.Shutdown(cmd.Context())
		return errors.Join(stopErr, shutdownErr)
	},
}

var daemonCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the run currently in flight on the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := daemonClient()
		if err != nil {
			return err
		}
		return client.Cancel(cmd.Context())
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the backend's lifecycle state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := daemonClient()
		if err != nil {
			return err
		}

		state, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), state)
		return nil
	},
}

// daemonServeCmd is the backend process entrypoint. Frontends spawn it; it is
// not meant to be invoked by hand.
var daemonServeCmd = &cobra.Command{
	Use:    "_serve",
	Short:  "Serve the control channel (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}

		logger, closeLogger := newLogger()
		defer closeLogger()

		a, err := newAdaptor(logger, loaded.Config, daemonInitData, daemonPathMapping)
		if err != nil {
			return err
		}

		connFile, err := ipc.ResolveConnectionFile(daemonConnFile)
		if err != nil {
			return err
		}

		b := backend.New(logger, loaded.Config, runner.New(logger, a), connFile)
		return b.Run(cmd.Context())
	},
}

// daemonClient builds the frontend client for commands that only talk to an
// already-running backend.
func daemonClient() (*frontend.Client, error) {
	loaded, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, _ := newLogger()
	return newClient(logger, loaded)
}

func newClient(logger *slog.Logger, loaded config.Loaded) (*frontend.Client, error) {
	return frontend.New(logger, loaded.Config, daemonConnFile)
}

func loadDaemonRunData() (map[string]any, error) {
	payload, err := data.Load(daemonRunData)
	if err != nil {
		return nil, fmt.Errorf("run data: %w", err)
	}
	return payload, nil
}

func init() {
	daemonCmd.PersistentFlags().StringVar(&daemonConnFile, "connection-file", "", "path to the connection descriptor file (required)")
	_ = daemonCmd.MarkPersistentFlagRequired("connection-file")

	daemonStartCmd.Flags().StringVar(&daemonInitData, "init-data", "", "init data: JSON/YAML literal or file:// reference")
	daemonStartCmd.Flags().StringVar(&daemonPathMapping, "path-mapping-rules", "", "path mapping rules: JSON/YAML literal or file:// reference")
	daemonRunCmd.Flags().StringVar(&daemonRunData, "run-data", "", "run data: JSON/YAML literal or file:// reference")
	daemonServeCmd.Flags().StringVar(&daemonInitData, "init-data", "", "init data: JSON/YAML literal or file:// reference")
	daemonServeCmd.Flags().StringVar(&daemonPathMapping, "path-mapping-rules", "", "path mapping rules: JSON/YAML literal or file:// reference")

	daemonCmd.AddCommand(daemonStartCmd, daemonRunCmd, daemonStopCmd, daemonCancelCmd, daemonStatusCmd, daemonServeCmd)
	rootCmd.AddCommand(daemonCmd)
}
