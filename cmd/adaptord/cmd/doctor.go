package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rbright/adaptord/internal/doctor"
	"github.com/rbright/adaptord/internal/ipc"
)

var doctorConnFile string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, the wrapped executable, and the runtime environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}

		connFile := doctorConnFile
		if connFile != "" {
			connFile, err = ipc.ResolveConnectionFile(connFile)
			if err != nil {
				return err
			}
		}

		report := doctor.Run(cmd.Context(), loaded, connFile)
		fmt.Fprintln(cmd.OutOrStdout(), report.String())
		if !report.OK() {
			return errors.New("doctor found problems")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().StringVar(&doctorConnFile, "connection-file", "", "also probe the backend behind this connection file")
	rootCmd.AddCommand(doctorCmd)
}
