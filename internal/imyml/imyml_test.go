package imyml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBatch = `
site: gitlab
project: group/proj
defaults:
  assignee: casey
  tags:
    - "+posted"
    - needs-label
  stub: true
  head: "## Context"
  tail: "_filed by issuer_"
issues:
  - Plain summary record
  - summary: Structured record
    body: with a body
    version: "1.0"
    tags:
      - "+urgent"
      - bug
`

func TestParse(t *testing.T) {
	batch, err := Parse([]byte(sampleBatch))
	require.NoError(t, err)

	assert.Equal(t, "gitlab", batch.Site)
	assert.Equal(t, "group/proj", batch.Project)
	assert.Equal(t, "casey", batch.Defaults["assignee"])
	require.Len(t, batch.Issues, 2)

	assert.Equal(t, "Plain summary record", batch.Issues[0])

	rec, ok := batch.Issues[1].(map[string]any)
	require.True(t, ok, "structured records decode as maps")
	assert.Equal(t, "Structured record", rec["summary"])
	assert.Equal(t, "1.0", rec["version"])
}

func TestParseRejectsEmptyBatch(t *testing.T) {
	_, err := Parse([]byte("project: p\nissues: []\n"))
	require.Error(t, err)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("issues: [unclosed"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBatch), 0644))

	batch, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, batch.Issues, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}
