// Package task implements the task commands.
package task

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bygga/bygga/cmd/output"
	"github.com/bygga/bygga/cmd/utils"
	"github.com/bygga/bygga/domain"
	"github.com/spf13/cobra"
)

// Reporter reads a task together with the live state of its run
type Reporter interface {
	TaskReport(ctx context.Context, taskID int64) (*domain.TaskReport, error)
}

// NewCmdTask creates the task command group
func NewCmdTask() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect dispatched tasks",
	}

	cmd.AddCommand(newCmdShow())
	return cmd
}

func newCmdShow() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task and the current status of its workflow run",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			taskID, err := utils.ParseID("task", args[0])
			if err != nil {
				utils.HandleCommandError("show task", err)
				return
			}

			a, err := utils.OpenApp(cmd)
			if err != nil {
				utils.HandleCommandError("show task", err)
				return
			}
			defer func() { _ = a.Close() }()

			if err := runShow(utils.CommandContext(cmd), os.Stdout, a.Dispatcher, taskID); err != nil {
				utils.HandleCommandError("show task", err, "task_id", taskID)
			}
		},
	}
}

func runShow(ctx context.Context, w io.Writer, reporter Reporter, taskID int64) error {
	report, err := reporter.TaskReport(ctx, taskID)
	if err != nil {
		return err
	}

	table, err := output.PrintTaskReport(report)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, table)
	return err
}
