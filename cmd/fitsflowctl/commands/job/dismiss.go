package job

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyforge/fitsflow/cmd/fitsflowctl/cmdutil"
)

var (
	dismissDeleteFiles bool
	dismissForce       bool
)

var dismissCmd = &cobra.Command{
	Use:   "dismiss <job-id>",
	Short: "Dismiss a finished job",
	Long: `Remove a finished job's journal entry so it no longer appears in
listings. With --delete-files, the job's downloaded files are removed too.

Examples:
  # Forget a cancelled job but keep its files
  fitsflowctl job dismiss 01J8ZK3V7Q

  # Forget the job and delete everything it downloaded
  fitsflowctl job dismiss 01J8ZK3V7Q --delete-files`,
	Args: cobra.ExactArgs(1),
	RunE: runDismiss,
}

func init() {
	dismissCmd.Flags().BoolVar(&dismissDeleteFiles, "delete-files", false, "Delete the job's downloaded files")
	dismissCmd.Flags().BoolVarP(&dismissForce, "force", "f", false, "Skip confirmation prompt")
}

func runDismiss(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	label := fmt.Sprintf("Dismiss job %s", jobID)
	if dismissDeleteFiles {
		label = fmt.Sprintf("Dismiss job %s and delete its files", jobID)
	}

	return cmdutil.RunWithConfirmation(label, dismissForce, func() error {
		resp, err := cmdutil.GetClient().DismissJob(jobID, dismissDeleteFiles)
		if err != nil {
			return fmt.Errorf("failed to dismiss job: %w", err)
		}
		if resp.DeletedFiles > 0 {
			cmdutil.PrintSuccess(fmt.Sprintf("Dismissed job %s (%d files deleted)", jobID, resp.DeletedFiles))
		} else {
			cmdutil.PrintSuccess(fmt.Sprintf("Dismissed job %s", jobID))
		}
		return nil
	})
}
