// Package poster drives one end-to-end batch submission: normalization,
// validation, reconciliation, then strictly sequential issue creation.
// Sequencing is deliberate: versions and tags created during reconciliation
// must be visible before dependent issues submit, and sequential processing
// keeps the in-run resource cache free of races without locking.
package poster

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/DocOps/issuer/internal/imyml"
	"github.com/DocOps/issuer/internal/issue"
	"github.com/DocOps/issuer/internal/reconcile"
	"github.com/DocOps/issuer/internal/runlog"
	"github.com/DocOps/issuer/internal/sites"
	"github.com/DocOps/issuer/pkg/models"
)

// Options configures one batch submission.
type Options struct {
	DryRun   bool
	Automate bool

	// BatchAppendTags are applied to every record; BatchDefaultTags apply
	// only to records with no regular tags of their own.
	BatchAppendTags  []string
	BatchDefaultTags []string

	// PaceEvery inserts PaceDelay after every PaceEvery submissions, as
	// rate-limit courtesy toward the platform. Zero disables pacing.
	PaceEvery int
	PaceDelay time.Duration
}

// Summary aggregates what a run did versus what was planned.
type Summary struct {
	Planned  int
	Created  int
	Skipped  int
	Failed   int
	Versions int
	Tags     int
	RunID    string
}

// Poster posts one batch to a site.
type Poster struct {
	Site     sites.Site
	Tracker  *runlog.Tracker
	Prompter reconcile.Prompter
	Options  Options
	Out      io.Writer
}

// countingTracker forwards ledger writes while tallying per-kind creations
// for the final summary.
type countingTracker struct {
	tracker *runlog.Tracker
	counts  map[string]int
}

func (c *countingTracker) LogArtifact(runID, kind string, a models.Artifact) error {
	c.counts[kind]++
	if c.tracker == nil {
		return nil
	}
	return c.tracker.LogArtifact(runID, kind, a)
}

// Post processes a whole batch. Validation failures and per-issue platform
// failures are reported and skipped; the batch continues. Only an operator
// abort during reconciliation halts the run.
func (p *Poster) Post(ctx context.Context, batch *imyml.Batch) (*Summary, error) {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}

	issues := p.normalize(batch, out)
	summary := &Summary{Planned: len(issues)}
	summary.Skipped = len(batch.Issues) - len(issues)

	if p.Options.DryRun {
		p.renderDryRun(ctx, batch.Project, issues, out)
		return summary, nil
	}

	runID, err := p.Tracker.Start(map[string]string{
		"site":    p.Site.Name(),
		"project": batch.Project,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start run record: %w", err)
	}
	summary.RunID = runID

	counting := &countingTracker{tracker: p.Tracker, counts: map[string]int{}}
	orch := &reconcile.Orchestrator{
		Site:     p.Site,
		Project:  batch.Project,
		Prompter: p.Prompter,
		Tracker:  counting,
		Automate: p.Options.Automate,
	}
	if err := orch.Run(ctx, issues, runID); err != nil {
		if ferr := p.Tracker.Fail(runID, err.Error()); ferr != nil {
			log.Warn().Err(ferr).Msg("could not record run failure")
		}
		return summary, err
	}
	summary.Versions = counting.counts[models.KindVersion]
	summary.Tags = counting.counts[models.KindTag]

	p.submit(ctx, batch.Project, issues, runID, counting, summary, out)

	if err := p.Tracker.Complete(runID, summary.Created); err != nil {
		log.Warn().Err(err).Msg("could not finalize run record")
	}

	fmt.Fprintf(out, "Created %d of %d issues (%d versions, %d tags created)\n",
		summary.Created, summary.Planned, summary.Versions, summary.Tags)
	return summary, nil
}

// normalize builds canonical issues from the raw records, resolves tags and
// stub bodies, and drops invalid records with an attributable message.
func (p *Poster) normalize(batch *imyml.Batch, out io.Writer) []*issue.Issue {
	var issues []*issue.Issue
	for idx, raw := range batch.Issues {
		iss := issue.New(raw, batch.Defaults)
		if err := iss.Validate(); err != nil {
			fmt.Fprintf(out, "skipping record %d: %v\n", idx+1, err)
			continue
		}
		iss.ResolveTags(p.Options.BatchAppendTags, p.Options.BatchDefaultTags)
		iss.ComposeStub(batch.Defaults)
		issues = append(issues, iss)
	}
	return issues
}

// submit posts issues one at a time, in input order. Failures are per-item:
// each is reported and counted, and the remaining items still submit.
func (p *Poster) submit(ctx context.Context, project string, issues []*issue.Issue, runID string, tracker *countingTracker, summary *Summary, out io.Writer) {
	limiter := p.paceLimiter()

	for _, iss := range issues {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				log.Warn().Err(err).Msg("pacing wait interrupted")
			}
		}

		params := p.Site.Translate(ctx, iss, project, false)
		ref, err := p.Site.CreateIssue(ctx, project, params)
		if err != nil {
			summary.Failed++
			fmt.Fprintf(out, "failed to create %q: %v\n", iss.Summary, err)
			continue
		}

		summary.Created++
		fmt.Fprintf(out, "created #%s %s %s\n", ref.ID, ref.Title, ref.URL)
		if err := tracker.LogArtifact(runID, models.KindIssue, models.IssueArtifact(ref)); err != nil {
			log.Warn().Err(err).Msg("could not record issue in run ledger")
		}
	}
}

// paceLimiter builds the courtesy throttle: bursts of PaceEvery submissions,
// refilling over PaceDelay. Pacing is politeness, not correctness.
func (p *Poster) paceLimiter() *rate.Limiter {
	if p.Options.PaceEvery <= 0 || p.Options.PaceDelay <= 0 {
		return nil
	}
	interval := p.Options.PaceDelay / time.Duration(p.Options.PaceEvery)
	return rate.NewLimiter(rate.Every(interval), p.Options.PaceEvery)
}

// renderDryRun prints each translated issue using the site's display labels
// and the aggregate plan. No platform mutation occurs.
func (p *Poster) renderDryRun(ctx context.Context, project string, issues []*issue.Issue, out io.Writer) {
	labels := p.Site.FieldMappings()
	for i, iss := range issues {
		params := p.Site.Translate(ctx, iss, project, true)
		fmt.Fprintf(out, "--- issue %d ---\n", i+1)
		for _, key := range sortedKeys(params) {
			label := key
			if l, ok := labels[canonicalField(key)]; ok {
				label = l
			}
			fmt.Fprintf(out, "%s: %v\n", label, params[key])
		}
	}
	fmt.Fprintf(out, "Would create %d issues in %s\n", len(issues), project)
}

// canonicalField maps a platform parameter key back to its canonical field
// name for display-label lookup.
func canonicalField(key string) string {
	switch key {
	case "title":
		return "summary"
	case "description", "body":
		return "body"
	case "milestone", "milestone_id", "milestone_number":
		return "version"
	case "labels":
		return "tags"
	case "issue_type":
		return "type"
	}
	return key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
