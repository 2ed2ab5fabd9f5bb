package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]any{"job_id": "a1b2c3", "total_files": 3}

	require.NoError(t, PrintYAML(&buf, data))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "a1b2c3", decoded["job_id"])
	assert.Equal(t, 3, decoded["total_files"])
}
