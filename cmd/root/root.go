// Package root implements the command line interface for bygga.
package root

import (
	"os"

	"github.com/bygga/bygga/cmd/output"
	"github.com/bygga/bygga/cmd/secret"
	"github.com/bygga/bygga/cmd/server"
	"github.com/bygga/bygga/cmd/task"
	"github.com/bygga/bygga/cmd/version"
	"github.com/bygga/bygga/logging"
	"github.com/spf13/cobra"
)

func Execute() {
	if err := NewCmdRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCmdRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bygga",
		Short: "Paid deployment gateway for GitHub Actions workflows",
		Long: `bygga sells access keys for deployment workflows and dispatches
	GitHub Actions runs on behalf of callers holding a valid key.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Commands that load configuration re-initialize both from it
			output.InitColors(output.NoColor.IsSet())
			logging.InitLogging(logging.LogLevel.String())
		},
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().VarP(logging.LogLevel, "log-level", "l", "Set log verbosity level")
	cmd.PersistentFlags().Var(output.NoColor, "no-color", "Disable colored terminal output")

	cmd.AddCommand(server.NewCmdServer())
	cmd.AddCommand(secret.NewCmdSecret())
	cmd.AddCommand(task.NewCmdTask())
	cmd.AddCommand(version.NewCmdVersion())
	return cmd
}
