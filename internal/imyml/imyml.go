// Package imyml loads Issue Management YAML batch files: run-level metadata,
// per-batch defaults, and an ordered list of issue records where each record
// is either a bare summary string or a map of canonical fields.
package imyml

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Batch is one parsed batch definition.
type Batch struct {
	// Site optionally names the target platform (gitlab, github).
	Site string `yaml:"site"`
	// Project is the target project identifier ("group/proj", "owner/repo").
	Project string `yaml:"project"`
	// Defaults holds the per-run defaults map layered under every record.
	Defaults map[string]any `yaml:"defaults"`
	// Issues is the ordered record list; entries are strings or maps.
	Issues []any `yaml:"issues"`
}

// Load reads and parses a batch file.
func Load(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return Parse(data)
}

// Parse decodes batch YAML.
func Parse(data []byte) (*Batch, error) {
	var batch Batch
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if batch.Defaults == nil {
		batch.Defaults = map[string]any{}
	}
	if len(batch.Issues) == 0 {
		return nil, fmt.Errorf("batch file contains no issues")
	}
	return &batch, nil
}
