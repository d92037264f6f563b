package poster

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DocOps/issuer/internal/imyml"
	"github.com/DocOps/issuer/internal/issue"
	"github.com/DocOps/issuer/internal/reconcile"
	"github.com/DocOps/issuer/internal/runlog"
	"github.com/DocOps/issuer/internal/sites"
	"github.com/DocOps/issuer/pkg/models"
)

// countingSite tracks every mutating call for assertion.
type countingSite struct {
	versions map[string]bool
	tags     map[string]bool

	createIssueCalls   int
	createVersionCalls int
	createTagCalls     int
	failTitles         map[string]bool
}

func newCountingSite() *countingSite {
	return &countingSite{
		versions:   map[string]bool{},
		tags:       map[string]bool{},
		failTitles: map[string]bool{},
	}
}

func (s *countingSite) Name() string { return "counting" }

func (s *countingSite) FieldMappings() map[string]string {
	return map[string]string{"summary": "Title", "version": "Milestone", "tags": "Labels"}
}

func (s *countingSite) Configure(map[string]any) error       { return nil }
func (s *countingSite) TestConnection(context.Context) error { return nil }

func (s *countingSite) Translate(ctx context.Context, iss *issue.Issue, project string, dryRun bool) map[string]any {
	params := map[string]any{"title": iss.Summary}
	if iss.Version != "" {
		if dryRun {
			params["milestone"] = iss.Version
		} else if s.versions[iss.Version] {
			params["milestone_id"] = iss.Version
		}
	}
	if len(iss.Tags) > 0 {
		params["labels"] = iss.Tags
	}
	return params
}

func (s *countingSite) GetExisting(ctx context.Context, project string) ([]models.Resource, []models.Resource, error) {
	var vs, ts []models.Resource
	for v := range s.versions {
		vs = append(vs, models.Resource{ID: v, Name: v})
	}
	for t := range s.tags {
		ts = append(ts, models.Resource{ID: t, Name: t})
	}
	return vs, ts, nil
}

func (s *countingSite) CreateVersion(ctx context.Context, project, name string, opts sites.ResourceOpts) (models.Resource, error) {
	s.createVersionCalls++
	s.versions[name] = true
	return models.Resource{ID: name, Name: name}, nil
}

func (s *countingSite) CreateTag(ctx context.Context, project, name string, opts sites.ResourceOpts) (models.Resource, error) {
	s.createTagCalls++
	s.tags[name] = true
	return models.Resource{ID: name, Name: name}, nil
}

func (s *countingSite) CreateIssue(ctx context.Context, project string, params map[string]any) (models.IssueRef, error) {
	s.createIssueCalls++
	title, _ := params["title"].(string)
	if s.failTitles[title] {
		return models.IssueRef{}, sites.WrapPlatform("counting", "create issue", errors.New("500"))
	}
	return models.IssueRef{ID: "1", Title: title, URL: "https://x/1"}, nil
}

func newTestPoster(t *testing.T, site sites.Site, opts Options) (*Poster, *bytes.Buffer) {
	t.Helper()
	tracker, err := runlog.NewTracker(t.TempDir())
	require.NoError(t, err)
	out := &bytes.Buffer{}
	return &Poster{
		Site:     site,
		Tracker:  tracker,
		Prompter: reconcile.AutoPrompter{},
		Options:  opts,
		Out:      out,
	}, out
}

func testBatch() *imyml.Batch {
	return &imyml.Batch{
		Project:  "group/proj",
		Defaults: map[string]any{"tags": []any{"+posted"}},
		Issues: []any{
			"First issue",
			map[string]any{"summary": "Second issue", "version": "1.0", "tags": []any{"bug"}},
			map[string]any{"body": "no summary here"},
		},
	}
}

func TestDryRunMakesNoPlatformCalls(t *testing.T) {
	site := newCountingSite()
	p, out := newTestPoster(t, site, Options{DryRun: true})

	summary, err := p.Post(context.Background(), testBatch())
	require.NoError(t, err)

	assert.Zero(t, site.createIssueCalls)
	assert.Zero(t, site.createVersionCalls)
	assert.Zero(t, site.createTagCalls)
	assert.Equal(t, 2, summary.Planned)
	assert.Equal(t, 1, summary.Skipped)
	assert.Contains(t, out.String(), "Would create 2 issues in group/proj")
	assert.Contains(t, out.String(), "Milestone: 1.0", "dry run shows display labels with raw version")
}

func TestLiveRunCreatesAndReconciles(t *testing.T) {
	site := newCountingSite()
	p, out := newTestPoster(t, site, Options{Automate: true})

	summary, err := p.Post(context.Background(), testBatch())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Created)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 1, site.createVersionCalls, "missing 1.0 reconciled once")
	assert.Equal(t, 2, site.createTagCalls, "posted and bug created")
	assert.Contains(t, out.String(), "skipping record 3")
	assert.Contains(t, out.String(), "Created 2 of 2 issues")

	run, err := p.Tracker.Get(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusCompleted, run.Status)
	assert.Equal(t, 2, run.Processed)
	assert.Equal(t, 2, run.Counts[models.KindIssue])
	assert.Equal(t, 1, run.Counts[models.KindVersion])
	assert.Equal(t, 2, run.Counts[models.KindTag])
}

func TestPartialFailureContinues(t *testing.T) {
	site := newCountingSite()
	site.failTitles["First issue"] = true
	p, out := newTestPoster(t, site, Options{Automate: true})

	summary, err := p.Post(context.Background(), testBatch())
	require.NoError(t, err, "per-item failures never halt the batch")

	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, out.String(), `failed to create "First issue"`)
	assert.Contains(t, out.String(), "Created 1 of 2 issues")

	run, err := p.Tracker.Get(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusCompleted, run.Status, "partial success still completes the run")
}

func TestAbortFailsRunBeforeSubmission(t *testing.T) {
	site := newCountingSite()
	p, _ := newTestPoster(t, site, Options{})
	p.Prompter = &reconcile.ScriptedPrompter{Answers: []reconcile.Answer{reconcile.AnswerAbort}}

	summary, err := p.Post(context.Background(), testBatch())
	require.ErrorIs(t, err, reconcile.ErrAborted)
	assert.Zero(t, site.createIssueCalls, "abort happens before any issue submits")

	run, terr := p.Tracker.Get(summary.RunID)
	require.NoError(t, terr)
	assert.Equal(t, runlog.StatusFailed, run.Status)
	assert.Equal(t, reconcile.ErrAborted.Error(), run.Error, "failure reason preserved verbatim")
}

func TestBatchLevelTagsReachResolution(t *testing.T) {
	site := newCountingSite()
	p, _ := newTestPoster(t, site, Options{
		Automate:         true,
		BatchAppendTags:  []string{"triage"},
		BatchDefaultTags: []string{"needs-review"},
	})

	batch := &imyml.Batch{
		Project: "group/proj",
		Issues:  []any{"Only issue"},
	}
	_, err := p.Post(context.Background(), batch)
	require.NoError(t, err)

	assert.True(t, site.tags["triage"])
	assert.True(t, site.tags["needs-review"], "record with no own tags picks up batch defaults")
}

func TestSummaryLineAlwaysReportsCreatedVsPlanned(t *testing.T) {
	site := newCountingSite()
	site.failTitles["Second issue"] = true
	p, out := newTestPoster(t, site, Options{Automate: true})

	_, err := p.Post(context.Background(), testBatch())
	require.NoError(t, err)
	require.True(t, strings.Contains(out.String(), "Created 1 of 2 issues"),
		"silent partial failure must be impossible: %s", out.String())
}
