package job

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyforge/fitsflow/cmd/fitsflowctl/cmdutil"
)

var (
	cancelDeleteFiles bool
	cancelForce       bool
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job",
	Long: `Cancel a download job. With --delete-files, partial files are removed
once the job drains.

Examples:
  # Cancel but keep partial files on disk
  fitsflowctl job cancel 01J8ZK3V7Q

  # Cancel and delete partial files without prompting
  fitsflowctl job cancel 01J8ZK3V7Q --delete-files --force`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	cancelCmd.Flags().BoolVar(&cancelDeleteFiles, "delete-files", false, "Delete partial files after cancelling")
	cancelCmd.Flags().BoolVarP(&cancelForce, "force", "f", false, "Skip confirmation prompt")
}

func runCancel(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	label := fmt.Sprintf("Cancel job %s", jobID)
	if cancelDeleteFiles {
		label = fmt.Sprintf("Cancel job %s and delete its partial files", jobID)
	}

	return cmdutil.RunWithConfirmation(label, cancelForce, func() error {
		if err := cmdutil.GetClient().CancelJob(jobID, cancelDeleteFiles); err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Cancelled job %s", jobID))
		return nil
	})
}
