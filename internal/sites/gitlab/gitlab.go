package gitlab

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/DocOps/issuer/internal/issue"
	"github.com/DocOps/issuer/internal/sites"
	"github.com/DocOps/issuer/pkg/models"
)

// Site implements the sites.Site contract for GitLab. Canonical versions map
// to milestones and canonical tags map to labels. Resources created during a
// run are cached on the instance so same-run lookups do not depend on the
// platform's read-after-write behavior.
type Site struct {
	gateway sites.Gateway
	config  Config
	cache   map[string]models.Resource
}

// Config contains configuration for the GitLab site.
type Config struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// New creates an unconfigured GitLab site for registry registration.
func New() *Site {
	return &Site{cache: make(map[string]models.Resource)}
}

// NewWithGateway creates a GitLab site over an explicit gateway. Used by
// tests to substitute a fake platform.
func NewWithGateway(gw sites.Gateway) *Site {
	return &Site{gateway: gw, cache: make(map[string]models.Resource)}
}

// Name returns the platform identifier.
func (s *Site) Name() string {
	return "gitlab"
}

// FieldMappings maps canonical fields to GitLab display labels.
func (s *Site) FieldMappings() map[string]string {
	return map[string]string{
		"summary":  "Title",
		"body":     "Description",
		"version":  "Milestone",
		"tags":     "Labels",
		"assignee": "Assignee",
		"type":     "Issue type",
	}
}

// TestConnection verifies the configured credentials.
func (s *Site) TestConnection(ctx context.Context) error {
	return s.gateway.TestConnection(ctx)
}

// Configure builds the gateway from the site's config map.
func (s *Site) Configure(config map[string]any) error {
	url, _ := config["url"].(string)
	token, ok := config["token"].(string)
	if !ok || token == "" {
		return fmt.Errorf("gitlab token is required")
	}

	gw, err := NewGateway(url, token)
	if err != nil {
		return fmt.Errorf("failed to initialize GitLab client: %w", err)
	}

	s.config = Config{URL: url, Token: token}
	s.gateway = gw
	return nil
}

// Translate maps canonical issue fields to GitLab issue parameters. Outside
// dry run the version is resolved to a milestone ID by name; an unresolvable
// version is omitted with a warning rather than fabricated. In dry run the
// raw version name passes through for display.
func (s *Site) Translate(ctx context.Context, iss *issue.Issue, project string, dryRun bool) map[string]any {
	params := map[string]any{
		"title": iss.Summary,
	}
	if iss.Body != "" {
		params["description"] = iss.Body
	}
	if len(iss.Tags) > 0 {
		params["labels"] = iss.Tags
	}
	if iss.Assignee != "" {
		params["assignee"] = iss.Assignee
	}
	if iss.Type != "" {
		params["issue_type"] = iss.Type
	}

	if iss.Version != "" {
		if dryRun {
			params["milestone"] = iss.Version
		} else if res := s.lookupVersion(ctx, project, iss.Version); res != nil {
			params["milestone_id"] = res.ID
		} else {
			log.Warn().
				Str("site", s.Name()).
				Str("milestone", iss.Version).
				Msg("milestone not found on platform; submitting issue without it")
		}
	}

	return params
}

func (s *Site) lookupVersion(ctx context.Context, project, name string) *models.Resource {
	if res, ok := s.cache[cacheKey(models.KindVersion, name)]; ok {
		return &res
	}
	res, err := s.gateway.FindVersion(ctx, project, name)
	if err != nil {
		log.Warn().Err(err).Str("milestone", name).Msg("milestone lookup failed")
		return nil
	}
	return res
}

// GetExisting returns the project's current milestones and labels, merged
// with anything created earlier in this run.
func (s *Site) GetExisting(ctx context.Context, project string) ([]models.Resource, []models.Resource, error) {
	versions, err := s.gateway.ListVersions(ctx, project)
	if err != nil {
		return nil, nil, err
	}
	tags, err := s.gateway.ListTags(ctx, project)
	if err != nil {
		return nil, nil, err
	}
	return s.mergeCached(models.KindVersion, versions), s.mergeCached(models.KindTag, tags), nil
}

// CreateVersion creates a milestone and records it in the run cache.
func (s *Site) CreateVersion(ctx context.Context, project, name string, opts sites.ResourceOpts) (models.Resource, error) {
	res, err := s.gateway.CreateVersion(ctx, project, name, opts.Description)
	if err != nil {
		return models.Resource{}, err
	}
	s.cache[cacheKey(models.KindVersion, name)] = res
	return res, nil
}

// CreateTag creates a label and records it in the run cache.
func (s *Site) CreateTag(ctx context.Context, project, name string, opts sites.ResourceOpts) (models.Resource, error) {
	res, err := s.gateway.CreateTag(ctx, project, name, opts.Color, opts.Description)
	if err != nil {
		return models.Resource{}, err
	}
	s.cache[cacheKey(models.KindTag, name)] = res
	return res, nil
}

// CreateIssue posts one translated issue to the project.
func (s *Site) CreateIssue(ctx context.Context, project string, params map[string]any) (models.IssueRef, error) {
	return s.gateway.CreateIssue(ctx, project, params)
}

func (s *Site) mergeCached(kind string, existing []models.Resource) []models.Resource {
	seen := map[string]bool{}
	for _, r := range existing {
		seen[r.Name] = true
	}
	merged := existing
	for key, r := range s.cache {
		if key == cacheKey(kind, r.Name) && !seen[r.Name] {
			merged = append(merged, r)
		}
	}
	return merged
}

func cacheKey(kind, name string) string {
	return kind + "/" + name
}
