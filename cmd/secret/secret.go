// Package secret implements the secret commands.
package secret

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bygga/bygga/cmd/output"
	"github.com/bygga/bygga/cmd/utils"
	"github.com/bygga/bygga/encryption"
	"github.com/bygga/bygga/project"
	"github.com/bygga/bygga/repository"
	"github.com/spf13/cobra"
)

// NewCmdSecret creates the secret command group
func NewCmdSecret() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage access secrets",
	}

	cmd.AddCommand(newCmdGenerate())
	cmd.AddCommand(newCmdList())
	cmd.AddCommand(newCmdValidate())
	return cmd
}

func newCmdGenerate() *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a new random secret",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runGenerate(os.Stdout, length); err != nil {
				utils.HandleCommandError("generate secret", err)
			}
		},
	}

	cmd.Flags().IntVar(&length, "length", encryption.DefaultSecretLength, "Number of characters, excluding group separators")
	return cmd
}

func runGenerate(w io.Writer, length int) error {
	value, err := encryption.GenerateSecret(length)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, value)
	return err
}

func newCmdList() *cobra.Command {
	var projectID int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List secrets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a, err := utils.OpenApp(cmd)
			if err != nil {
				utils.HandleCommandError("list secrets", err)
				return
			}
			defer func() { _ = a.Close() }()

			if err := runList(utils.CommandContext(cmd), os.Stdout, a.Secrets, projectID); err != nil {
				utils.HandleCommandError("list secrets", err, "project_id", projectID)
			}
		},
	}

	cmd.Flags().Int64Var(&projectID, "project", 0, "Only list secrets of this project")
	return cmd
}

func runList(ctx context.Context, w io.Writer, secrets project.SecretManager, projectID int64) error {
	filter := repository.SecretFilter{}
	if projectID > 0 {
		filter.ProjectID = &projectID
	}

	page, err := secrets.List(ctx, filter)
	if err != nil {
		return err
	}

	table, err := output.PrintSecretList(page.List, time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, table)
	return err
}

func newCmdValidate() *cobra.Command {
	var (
		projectID int64
		value     string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check whether a secret is usable for a project",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a, err := utils.OpenApp(cmd)
			if err != nil {
				utils.HandleCommandError("validate secret", err)
				return
			}
			defer func() { _ = a.Close() }()

			if err := runValidate(utils.CommandContext(cmd), os.Stdout, a.Secrets, projectID, value); err != nil {
				utils.HandleCommandError("validate secret", err, "project_id", projectID)
			}
		},
	}

	cmd.Flags().Int64Var(&projectID, "project", 0, "Project ID")
	cmd.Flags().StringVar(&value, "secret", "", "Secret value")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}

func runValidate(ctx context.Context, w io.Writer, secrets project.SecretManager, projectID int64, value string) error {
	valid, err := secrets.Validate(ctx, value, projectID)
	if err != nil {
		return err
	}

	if valid {
		_, err = fmt.Fprint(w, output.PrintMessage(output.Success, "Secret is valid for project %d", projectID))
	} else {
		_, err = fmt.Fprint(w, output.PrintMessage(output.Warning, "Secret is invalid, expired or exhausted"))
	}
	return err
}
