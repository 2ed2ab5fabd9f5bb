package job

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyforge/fitsflow/cmd/fitsflowctl/cmdutil"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused or interrupted job",
	Long: `Resume a paused or interrupted download job from its journaled offsets.

Examples:
  fitsflowctl job resume 01J8ZK3V7Q`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	if err := cmdutil.GetClient().ResumeJob(args[0]); err != nil {
		return fmt.Errorf("failed to resume job: %w", err)
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Resumed job %s", args[0]))
	return nil
}
