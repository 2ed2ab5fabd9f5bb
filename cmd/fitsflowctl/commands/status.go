package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skyforge/fitsflow/cmd/fitsflowctl/cmdutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health",
	Long: `Check the liveness and readiness of the FitsFlow server.

Examples:
  # Check the default server
  fitsflowctl status

  # Check a specific server
  fitsflowctl status --server http://fitsflow.example.org:8080`,
	RunE: runStatus,
}

// statusTable renders the health summary.
type statusTable struct {
	liveness  string
	readiness string
	details   map[string]any
}

// Headers implements TableRenderer.
func (s statusTable) Headers() []string {
	return []string{"CHECK", "STATUS", "DETAIL"}
}

// Rows implements TableRenderer.
func (s statusTable) Rows() [][]string {
	rows := [][]string{
		{"liveness", s.liveness, ""},
		{"readiness", s.readiness, ""},
	}
	for key, value := range s.details {
		rows = append(rows, []string{"", "", fmt.Sprintf("%s=%v", key, value)})
	}
	return rows
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := cmdutil.GetClient()

	health, err := client.Health()
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	table := statusTable{liveness: health.Status}

	ready, err := client.Ready()
	if err != nil {
		table.readiness = "unhealthy"
	} else {
		table.readiness = ready.Status
		table.details = ready.Data
	}

	return cmdutil.PrintResource(os.Stdout, map[string]any{
		"liveness":  table.liveness,
		"readiness": table.readiness,
		"details":   table.details,
	}, table)
}
