package job

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skyforge/fitsflow/cmd/fitsflowctl/cmdutil"
	"github.com/skyforge/fitsflow/internal/cli/output"
	"github.com/skyforge/fitsflow/pkg/jobs"
)

var statusFiles bool

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show job progress",
	Long: `Show the progress snapshot of a download job.

Examples:
  # Overall progress
  fitsflowctl job status 01J8ZK3V7Q

  # Include the per-file breakdown
  fitsflowctl job status 01J8ZK3V7Q --files`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFiles, "files", false, "Show the per-file breakdown")
}

func runStatus(cmd *cobra.Command, args []string) error {
	snap, err := cmdutil.GetClient().GetJob(args[0])
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	if err := cmdutil.PrintResource(os.Stdout, snap, snapshotTable{snap: snap}); err != nil {
		return err
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil || !statusFiles || format != output.FormatTable {
		return err
	}
	fmt.Println()
	return cmdutil.PrintOutput(os.Stdout, snap.Files, len(snap.Files) == 0,
		"No files in manifest yet.", fileTable{files: snap.Files})
}

// snapshotTable renders the overall job snapshot.
type snapshotTable struct {
	snap *jobs.Snapshot
}

func (t snapshotTable) Headers() []string {
	return []string{"JOB ID", "SOURCE", "STATUS", "FILES", "PROGRESS", "SPEED", "ETA"}
}

func (t snapshotTable) Rows() [][]string {
	s := t.snap
	eta := "-"
	if s.ETASeconds != nil {
		eta = fmt.Sprintf("%.0fs", *s.ETASeconds)
	}
	row := []string{
		s.JobID,
		s.SourceID,
		string(s.Status),
		fmt.Sprintf("%d/%d", s.CompletedFiles, s.TotalFiles),
		fmt.Sprintf("%s (%s / %s)",
			cmdutil.FormatPercent(s.Percent),
			cmdutil.FormatBytes(s.DownloadedBytes),
			cmdutil.FormatBytes(s.TotalBytes)),
		cmdutil.FormatSpeed(s.SpeedBytesPerSec),
		eta,
	}
	return [][]string{row}
}

// fileTable renders the per-file breakdown of a snapshot.
type fileTable struct {
	files []jobs.FileSnapshot
}

func (t fileTable) Headers() []string {
	return []string{"FILE", "STATUS", "DOWNLOADED", "SIZE"}
}

func (t fileTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.files))
	for _, f := range t.files {
		rows = append(rows, []string{
			f.Filename,
			string(f.Status),
			cmdutil.FormatBytes(f.DownloadedBytes),
			cmdutil.FormatBytes(f.TotalBytes),
		})
	}
	return rows
}
