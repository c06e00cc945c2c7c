// Package utils provides utility functions for CLI commands in bygga.
package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/bygga/bygga/app"
	"github.com/bygga/bygga/cmd/output"
	"github.com/bygga/bygga/config"
	"github.com/bygga/bygga/logging"
	"github.com/spf13/cobra"
)

// exit is replaced in tests
var exit = os.Exit

// HandleCommandError provides consistent error handling for CLI commands
func HandleCommandError(operation string, err error, context ...any) {
	handleCommandError(os.Stderr, operation, err, context...)
	exit(1)
}

func handleCommandError(w io.Writer, operation string, err error, context ...any) {
	slog.Error("Command failed", append([]any{"operation", operation, "error", err}, context...)...)
	_, _ = fmt.Fprint(w, output.PrintMessage(output.Error, "Error: %s failed: %v", operation, err))
}

// LoadConfig loads configuration from the --config flag and the environment.
// Logging and colors follow the configuration unless set explicitly on the command line.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	output.InitColors(!cfg.ColorEnabled || output.NoColor.IsSet())

	logLevel := cfg.LogLevel
	if logging.LogLevel.IsSet() {
		logLevel = logging.LogLevel.String()
	}
	logging.InitLoggingWithFormat(logLevel, cfg.LogFormat)

	return cfg, nil
}

// OpenApp loads configuration and wires the application. Callers must Close it.
func OpenApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a, err := app.New(CommandContext(cmd), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return a, nil
}

// ParseID parses a positive numeric identifier given on the command line
func ParseID(what, input string) (int64, error) {
	id, err := strconv.ParseInt(input, 10, 64)
	if err != nil || id <= 0 {
		slog.Warn("Invalid ID provided", "what", what, "input", input)
		return 0, fmt.Errorf("invalid %s ID '%s', must be a positive number", what, input)
	}
	return id, nil
}

// CommandContext returns the command's context, or a background context when it has none
func CommandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
