// Package version provides the version command for bygga.
package version

import (
	"fmt"
	"io"
	"os"

	"github.com/bygga/bygga/app"
	"github.com/spf13/cobra"
)

// NewCmdVersion creates the version command
func NewCmdVersion() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version information for bygga.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(os.Stdout)
		},
	}

	return cmd
}

func runVersion(w io.Writer) error {
	_, err := fmt.Fprintln(w, app.Version)
	return err
}
