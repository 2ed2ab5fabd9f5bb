package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skyforge/fitsflow/cmd/fitsflowctl/cmdutil"
	"github.com/skyforge/fitsflow/pkg/apiclient"
)

var (
	previewRGB      []string
	previewChannels string
	previewBudget   int64
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Request a reprojected preview",
	Long: `Request a reprojected preview for FITS channels already in storage.

Either --rgb with exactly three storage keys, or --channels with a
comma-separated list, must be given.

Examples:
  # RGB composite
  fitsflowctl preview --rgb f444w.fits,f277w.fits,f090w.fits

  # N-channel preview with a custom pixel budget
  fitsflowctl preview --channels jw02731/f090w.fits,jw02731/f187n.fits --budget 2000000`,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringSliceVar(&previewRGB, "rgb", nil, "Three storage keys mapped to R,G,B")
	previewCmd.Flags().StringVar(&previewChannels, "channels", "", "Comma-separated channel storage keys")
	previewCmd.Flags().Int64Var(&previewBudget, "budget", 0, "Input pixel budget (server default when omitted)")
}

// previewTable renders the returned plane dimensions.
type previewTable struct {
	resp *apiclient.PreviewResponse
}

// Headers implements TableRenderer.
func (p previewTable) Headers() []string {
	return []string{"LABEL", "WIDTH", "HEIGHT"}
}

// Rows implements TableRenderer.
func (p previewTable) Rows() [][]string {
	rows := make([][]string, 0, len(p.resp.Planes))
	for _, plane := range p.resp.Planes {
		rows = append(rows, []string{
			plane.Label,
			fmt.Sprintf("%d", plane.Width),
			fmt.Sprintf("%d", plane.Height),
		})
	}
	return rows
}

func runPreview(cmd *cobra.Command, args []string) error {
	req := apiclient.PreviewRequest{InputPixelBudget: previewBudget}

	switch {
	case len(previewRGB) == 3:
		req.Mode = "rgb"
		req.R, req.G, req.B = previewRGB[0], previewRGB[1], previewRGB[2]
	case len(previewRGB) > 0:
		return fmt.Errorf("--rgb requires exactly three keys, got %d", len(previewRGB))
	case previewChannels != "":
		req.Mode = "channels"
		req.Channels = cmdutil.ParseCommaSeparatedList(previewChannels)
	default:
		return fmt.Errorf("either --rgb or --channels is required")
	}

	resp, err := cmdutil.GetClient().Preview(req)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Preview rendered (cache %s, %s)",
		resp.Cache, cmdutil.FormatBytes(resp.Bytes)))
	return cmdutil.PrintResource(os.Stdout, resp, previewTable{resp: resp})
}
