// Package job implements the download-job subcommands of fitsflowctl.
package job

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for download-job management.
var Cmd = &cobra.Command{
	Use:     "job",
	Aliases: []string{"jobs"},
	Short:   "Manage download jobs",
	Long:    `Start, monitor, pause, resume, cancel and dismiss download jobs.`,
}

func init() {
	Cmd.AddCommand(startCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(pauseCmd)
	Cmd.AddCommand(resumeCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(dismissCmd)
}
