package reconcile

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/DocOps/issuer/internal/issue"
	"github.com/DocOps/issuer/internal/sites"
	"github.com/DocOps/issuer/pkg/models"
)

// ErrAborted is returned when the operator refuses to continue during
// interactive reconciliation. Unlike platform errors this is fatal: issues
// silently posted without an expected version or tag are judged worse than
// stopping early.
var ErrAborted = errors.New("run aborted by operator")

// State tracks the orchestrator's progress through one reconciliation pass.
type State string

const (
	StateCollecting State = "collecting"
	StateDiffing    State = "diffing"
	StateNoAction   State = "no_action"
	StateResolving  State = "resolving"
	StateDone       State = "done"
)

// Required holds the distinct cross-entities a batch references.
type Required struct {
	Versions []string
	Tags     []string
}

// ArtifactLogger records created resources in the run ledger. Satisfied by
// the runlog tracker; bookkeeping failures never abort reconciliation.
type ArtifactLogger interface {
	LogArtifact(runID, kind string, artifact models.Artifact) error
}

// Orchestrator ensures every version and tag the batch references exists on
// the platform before submission begins, creating missing ones either
// automatically or per the operator's prompted decisions.
type Orchestrator struct {
	Site     sites.Site
	Project  string
	Prompter Prompter
	Tracker  ArtifactLogger
	Automate bool

	state State
}

// State returns the orchestrator's current state.
func (o *Orchestrator) State() State {
	return o.state
}

// CollectRequired scans all valid issues' resolved version and tag fields
// into distinct non-empty sets.
func CollectRequired(issues []*issue.Issue) Required {
	versions := map[string]bool{}
	tags := map[string]bool{}
	for _, iss := range issues {
		if !iss.Valid() {
			continue
		}
		if iss.Version != "" {
			versions[iss.Version] = true
		}
		for _, t := range iss.Tags {
			if t != "" {
				tags[t] = true
			}
		}
	}
	return Required{Versions: keys(versions), Tags: keys(tags)}
}

// Diff subtracts the platform's existing resources from the required sets,
// using a single query call.
func Diff(ctx context.Context, site sites.Site, project string, required Required) (Required, error) {
	versions, tags, err := site.GetExisting(ctx, project)
	if err != nil {
		return Required{}, err
	}

	haveVersions := map[string]bool{}
	for _, v := range versions {
		haveVersions[v.Name] = true
	}
	haveTags := map[string]bool{}
	for _, t := range tags {
		haveTags[t.Name] = true
	}

	var missing Required
	for _, v := range required.Versions {
		if !haveVersions[v] {
			missing.Versions = append(missing.Versions, v)
		}
	}
	for _, t := range required.Tags {
		if !haveTags[t] {
			missing.Tags = append(missing.Tags, t)
		}
	}
	return missing, nil
}

// Run performs the full reconciliation pass for a batch. It returns
// ErrAborted when the operator refuses to continue; any platform failure is
// downgraded to a warning and the pass continues best-effort, since some
// issues may not depend on the failed resource.
func (o *Orchestrator) Run(ctx context.Context, issues []*issue.Issue, runID string) error {
	o.state = StateCollecting
	required := CollectRequired(issues)

	o.state = StateDiffing
	missing, err := Diff(ctx, o.Site, o.Project, required)
	if err != nil {
		log.Warn().Err(err).Msg("could not query existing resources; skipping reconciliation")
		o.state = StateDone
		return nil
	}

	if len(missing.Versions) == 0 && len(missing.Tags) == 0 {
		o.state = StateNoAction
		log.Debug().Msg("all referenced versions and tags already exist")
		o.state = StateDone
		return nil
	}

	o.state = StateResolving
	if err := o.resolve(ctx, missing.Versions, models.KindVersion, runID); err != nil {
		return err
	}
	if err := o.resolve(ctx, missing.Tags, models.KindTag, runID); err != nil {
		return err
	}

	o.state = StateDone
	return nil
}

// resolve drives creation of one kind of missing resource. Automation
// creates everything unconditionally; otherwise each resource is prompted
// for individually.
func (o *Orchestrator) resolve(ctx context.Context, missing []string, kind, runID string) error {
	for _, name := range missing {
		opts := sites.ResourceOpts{}

		if !o.Automate {
			answer, custom, err := o.Prompter.Resolve(kindLabel(kind), name)
			if err != nil {
				return err
			}
			switch answer {
			case AnswerAbort:
				return ErrAborted
			case AnswerDecline:
				log.Info().Str("kind", kindLabel(kind)).Str("name", name).
					Msg("skipped by operator; dependent issues will post without it")
				continue
			case AnswerCustom:
				opts = custom
			}
		}

		if err := o.create(ctx, kind, name, opts, runID); err != nil {
			log.Warn().Err(err).Str("kind", kindLabel(kind)).Str("name", name).
				Msg("could not create resource; dependent issues will post without it")
		}
	}
	return nil
}

func (o *Orchestrator) create(ctx context.Context, kind, name string, opts sites.ResourceOpts, runID string) error {
	var res models.Resource
	var err error
	switch kind {
	case models.KindVersion:
		res, err = o.Site.CreateVersion(ctx, o.Project, name, opts)
	case models.KindTag:
		res, err = o.Site.CreateTag(ctx, o.Project, name, opts)
	}
	if err != nil {
		return err
	}

	log.Info().Str("kind", kindLabel(kind)).Str("name", name).Str("id", res.ID).Msg("created resource")

	if o.Tracker != nil {
		if lerr := o.Tracker.LogArtifact(runID, kind, models.ResourceArtifact(res)); lerr != nil {
			log.Warn().Err(lerr).Msg("could not record artifact in run ledger")
		}
	}
	return nil
}

func kindLabel(kind string) string {
	switch kind {
	case models.KindVersion:
		return "version"
	case models.KindTag:
		return "tag"
	}
	return kind
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
