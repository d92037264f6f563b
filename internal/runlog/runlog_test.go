package runlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DocOps/issuer/pkg/models"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tracker, err := NewTracker(t.TempDir())
	require.NoError(t, err)
	return tracker
}

func TestStartCreatesInProgressRun(t *testing.T) {
	tracker := newTestTracker(t)

	id, err := tracker.Start(map[string]string{"project": "group/proj", "site": "gitlab"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := tracker.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, run.Status)
	assert.Empty(t, run.Artifacts)
	assert.Empty(t, run.Counts)
	assert.Equal(t, "group/proj", run.Metadata["project"])
	assert.Nil(t, run.FinishedAt)
}

func TestLogArtifactAppendsAndCounts(t *testing.T) {
	tracker := newTestTracker(t)
	id, err := tracker.Start(nil)
	require.NoError(t, err)

	require.NoError(t, tracker.LogArtifact(id, models.KindVersion, models.Artifact{ID: "1", Name: "1.0"}))
	require.NoError(t, tracker.LogArtifact(id, models.KindIssue, models.Artifact{ID: "10", Name: "Fix login"}))
	require.NoError(t, tracker.LogArtifact(id, models.KindIssue, models.Artifact{ID: "11", Name: "Fix logout"}))

	run, err := tracker.Get(id)
	require.NoError(t, err)
	assert.Len(t, run.Artifacts[models.KindVersion], 1)
	assert.Len(t, run.Artifacts[models.KindIssue], 2)
	assert.Equal(t, 1, run.Counts[models.KindVersion])
	assert.Equal(t, 2, run.Counts[models.KindIssue])
}

func TestCompleteIsTerminal(t *testing.T) {
	tracker := newTestTracker(t)
	id, err := tracker.Start(nil)
	require.NoError(t, err)

	require.NoError(t, tracker.Complete(id, 5))

	run, err := tracker.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 5, run.Processed)
	require.NotNil(t, run.FinishedAt)

	// terminal transitions are mutually exclusive
	assert.Error(t, tracker.Fail(id, "too late"))
	assert.Error(t, tracker.Complete(id, 9))
}

func TestFailPreservesMessageVerbatim(t *testing.T) {
	tracker := newTestTracker(t)
	id, err := tracker.Start(nil)
	require.NoError(t, err)

	msg := "gitlab: create issue: 500 Internal Server Error"
	require.NoError(t, tracker.Fail(id, msg))

	run, err := tracker.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, msg, run.Error)

	assert.Error(t, tracker.Complete(id, 1))
}

func TestListNewestFirst(t *testing.T) {
	tracker := newTestTracker(t)
	first, err := tracker.Start(nil)
	require.NoError(t, err)
	second, err := tracker.Start(nil)
	require.NoError(t, err)

	runs, err := tracker.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
	assert.False(t, runs[0].StartedAt.Before(runs[1].StartedAt))
}

func TestDelete(t *testing.T) {
	tracker := newTestTracker(t)
	id, err := tracker.Start(nil)
	require.NoError(t, err)

	require.NoError(t, tracker.Delete(id))
	_, err = tracker.Get(id)
	assert.Error(t, err)
	assert.Error(t, tracker.Delete(id), "deleting twice reports the missing record")
}

func TestDefaultDirEnvOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "elsewhere")
	t.Setenv("ISSUER_RUNS_DIR", dir)

	tracker, err := NewTracker("")
	require.NoError(t, err)
	assert.Equal(t, dir, tracker.Dir())
	assert.DirExists(t, dir)
}

func TestDefaultDirXDG(t *testing.T) {
	t.Setenv("ISSUER_RUNS_DIR", "")
	xdg := t.TempDir()
	t.Setenv("XDG_DATA_HOME", xdg)

	tracker, err := NewTracker("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "issuer", "runs"), tracker.Dir())
}
