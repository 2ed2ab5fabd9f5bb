package job

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skyforge/fitsflow/cmd/fitsflowctl/cmdutil"
	"github.com/skyforge/fitsflow/pkg/apiclient"
)

var (
	startTargetDir string
	startFilters   string
	startResumeJob string
)

var startCmd = &cobra.Command{
	Use:   "start [source-id]",
	Short: "Start a download job",
	Long: `Start downloading an observation from the archive.

When an interrupted job for the same source exists, the server resumes it
instead of starting over. Pass --resume with a job ID to resume a specific
job without naming a source.

Examples:
  # Download a JWST observation
  fitsflowctl job start jw02731

  # Restrict to specific filters
  fitsflowctl job start jw02731 --filters f090w,f187n

  # Resume a specific interrupted job
  fitsflowctl job start --resume 01J8ZK3V7Q`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startTargetDir, "target-dir", "", "Destination directory relative to the storage root")
	startCmd.Flags().StringVar(&startFilters, "filters", "", "Comma-separated filter names to restrict the manifest")
	startCmd.Flags().StringVar(&startResumeJob, "resume", "", "Resume a specific job by ID instead of starting a source")
}

func runStart(cmd *cobra.Command, args []string) error {
	req := apiclient.StartDownloadRequest{
		TargetDir:   startTargetDir,
		Filters:     cmdutil.ParseCommaSeparatedList(startFilters),
		ResumeJobID: startResumeJob,
	}
	if len(args) == 1 {
		req.SourceID = args[0]
	}
	if req.SourceID == "" && req.ResumeJobID == "" {
		return fmt.Errorf("a source ID argument or --resume is required")
	}

	resp, err := cmdutil.GetClient().StartDownload(req)
	if err != nil {
		return fmt.Errorf("failed to start download: %w", err)
	}

	if resp.IsResume {
		cmdutil.PrintSuccess(fmt.Sprintf("Resumed job %s", resp.JobID))
	} else {
		cmdutil.PrintSuccess(fmt.Sprintf("Started job %s", resp.JobID))
	}
	return cmdutil.PrintResource(os.Stdout, resp, startTable{resp: resp})
}

// startTable renders the start response.
type startTable struct {
	resp *apiclient.StartDownloadResponse
}

func (s startTable) Headers() []string {
	return []string{"JOB ID", "STATUS"}
}

func (s startTable) Rows() [][]string {
	return [][]string{{s.resp.JobID, s.resp.Status}}
}
