package job

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skyforge/fitsflow/cmd/fitsflowctl/cmdutil"
	"github.com/skyforge/fitsflow/internal/cli/timeutil"
	"github.com/skyforge/fitsflow/pkg/jobs"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List resumable jobs",
	Long: `List interrupted jobs whose journal entries allow resuming.

Examples:
  # Show resumable jobs
  fitsflowctl job list

  # Machine-readable output
  fitsflowctl job list -o json`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	summaries, err := cmdutil.GetClient().ListResumable()
	if err != nil {
		return fmt.Errorf("failed to list resumable jobs: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, summaries, len(summaries) == 0,
		"No resumable jobs.", resumableTable{jobs: summaries})
}

// resumableTable renders the resumable-job listing.
type resumableTable struct {
	jobs []jobs.ResumableSummary
}

func (t resumableTable) Headers() []string {
	return []string{"JOB ID", "SOURCE", "STATUS", "FILES", "PROGRESS", "UPDATED"}
}

func (t resumableTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.jobs))
	for _, j := range t.jobs {
		progress := fmt.Sprintf("%s / %s",
			cmdutil.FormatBytes(j.DownloadedBytes),
			cmdutil.FormatBytes(j.TotalBytes))
		rows = append(rows, []string{
			j.JobID,
			j.SourceID,
			string(j.Status),
			fmt.Sprintf("%d/%d", j.CompletedFiles, j.TotalFiles),
			progress,
			timeutil.FormatTime(j.UpdatedAt),
		})
	}
	return rows
}
