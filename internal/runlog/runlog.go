package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DocOps/issuer/pkg/models"
)

// Status is a run's lifecycle state. Completed and failed are terminal and
// mutually exclusive.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Run is the persisted record of one batch submission: lifecycle status,
// declared metadata, and the ledger of artifacts created on the platform.
type Run struct {
	ID         string                       `json:"id"`
	Status     Status                       `json:"status"`
	StartedAt  time.Time                    `json:"started_at"`
	FinishedAt *time.Time                   `json:"finished_at,omitempty"`
	Metadata   map[string]string            `json:"metadata,omitempty"`
	Artifacts  map[string][]models.Artifact `json:"artifacts"`
	Counts     map[string]int               `json:"counts"`
	Processed  int                          `json:"processed"`
	Error      string                       `json:"error,omitempty"`
}

// Tracker persists run records as one JSON file per run under a directory.
type Tracker struct {
	dir string
}

// NewTracker creates a tracker rooted at dir. An empty dir resolves through
// the ISSUER_RUNS_DIR environment override, then the XDG data convention,
// then a local fallback.
func NewTracker(dir string) (*Tracker, error) {
	if dir == "" {
		dir = defaultDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}
	return &Tracker{dir: dir}, nil
}

// Dir returns the directory run records are written to.
func (t *Tracker) Dir() string {
	return t.dir
}

// Start creates and durably persists a new in-progress run record before any
// platform side effect is attempted, so a crash mid-run leaves a
// discoverable record.
func (t *Tracker) Start(metadata map[string]string) (string, error) {
	id := fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102_150405"), shortID())
	run := &Run{
		ID:        id,
		Status:    StatusInProgress,
		StartedAt: time.Now().UTC(),
		Metadata:  metadata,
		Artifacts: map[string][]models.Artifact{},
		Counts:    map[string]int{},
	}
	if err := t.write(run); err != nil {
		return "", err
	}
	return id, nil
}

// LogArtifact appends one created-artifact descriptor under its kind and
// increments the per-kind counter. Each call records exactly one creation.
func (t *Tracker) LogArtifact(runID, kind string, artifact models.Artifact) error {
	run, err := t.Get(runID)
	if err != nil {
		return err
	}
	if run.Artifacts == nil {
		run.Artifacts = map[string][]models.Artifact{}
	}
	if run.Counts == nil {
		run.Counts = map[string]int{}
	}
	run.Artifacts[kind] = append(run.Artifacts[kind], artifact)
	run.Counts[kind]++
	return t.write(run)
}

// Complete marks the run completed with the number of records processed.
func (t *Tracker) Complete(runID string, processed int) error {
	return t.finish(runID, StatusCompleted, processed, "")
}

// Fail marks the run failed, preserving the failure reason verbatim.
func (t *Tracker) Fail(runID, message string) error {
	return t.finish(runID, StatusFailed, 0, message)
}

func (t *Tracker) finish(runID string, status Status, processed int, message string) error {
	run, err := t.Get(runID)
	if err != nil {
		return err
	}
	if run.Status != StatusInProgress {
		return fmt.Errorf("run %s already finished with status %s", runID, run.Status)
	}
	now := time.Now().UTC()
	run.Status = status
	run.FinishedAt = &now
	run.Processed = processed
	run.Error = message
	return t.write(run)
}

// Get loads one run record by ID.
func (t *Tracker) Get(runID string) (*Run, error) {
	data, err := os.ReadFile(t.path(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse run %s: %w", runID, err)
	}
	return &run, nil
}

// List loads all run records, newest first.
func (t *Tracker) List() ([]*Run, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var runs []*Run
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		run, err := t.Get(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// Delete removes one run record.
func (t *Tracker) Delete(runID string) error {
	if err := os.Remove(t.path(runID)); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

func (t *Tracker) path(runID string) string {
	return filepath.Join(t.dir, runID+".json")
}

func (t *Tracker) write(run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}
	if err := os.WriteFile(t.path(run.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
	}
	return nil
}

func shortID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// defaultDir resolves the run-record directory: environment override first,
// then XDG data home, then the home-directory XDG default, then a local
// fallback for environments with no home at all.
func defaultDir() string {
	if dir := os.Getenv("ISSUER_RUNS_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "issuer", "runs")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", "issuer", "runs")
	}
	return filepath.Join(".issuer", "runs")
}
