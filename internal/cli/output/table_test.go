package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jobTable struct{}

func (jobTable) Headers() []string {
	return []string{"JOB ID", "STATUS", "PROGRESS"}
}

func (jobTable) Rows() [][]string {
	return [][]string{
		{"a1b2c3d4e5f6", "downloading", "42.0%"},
		{"0f1e2d3c4b5a", "paused", "10.5%"},
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, jobTable{}))

	out := buf.String()
	assert.Contains(t, out, "JOB ID")
	assert.Contains(t, out, "a1b2c3d4e5f6")
	assert.Contains(t, out, "downloading")
	assert.Contains(t, out, "paused")
}

type emptyTable struct{}

func (emptyTable) Headers() []string { return []string{"JOB ID"} }
func (emptyTable) Rows() [][]string  { return nil }

func TestPrintTableNoRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, emptyTable{}))
	assert.Contains(t, buf.String(), "JOB ID")
}
