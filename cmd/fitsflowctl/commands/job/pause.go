package job

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyforge/fitsflow/cmd/fitsflowctl/cmdutil"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a running job",
	Long: `Pause a running download job. Live transfers stop at the next chunk
boundary and the job becomes resumable.

Examples:
  fitsflowctl job pause 01J8ZK3V7Q`,
	Args: cobra.ExactArgs(1),
	RunE: runPause,
}

func runPause(cmd *cobra.Command, args []string) error {
	if err := cmdutil.GetClient().PauseJob(args[0]); err != nil {
		return fmt.Errorf("failed to pause job: %w", err)
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Paused job %s", args[0]))
	return nil
}
