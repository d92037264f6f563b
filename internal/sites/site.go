package sites

import (
	"context"
	"fmt"

	"github.com/DocOps/issuer/internal/issue"
	"github.com/DocOps/issuer/pkg/models"
)

// Site translates canonical issues into calls against one ticket-tracking
// platform (GitLab, GitHub). Implementations own an in-run cache of resources
// they create, so same-run lookups succeed ahead of any read-after-write lag
// on the platform side. Sites never retry; retry/backoff belongs to the
// gateway layer underneath.
type Site interface {
	// Name returns the platform identifier used for registry lookup,
	// terminology and logging.
	Name() string

	// FieldMappings maps canonical field names to the platform's display
	// labels. Display only, not wire format.
	FieldMappings() map[string]string

	// TestConnection verifies credentials before any batch processing.
	TestConnection(ctx context.Context) error

	// Translate maps canonical fields to platform parameters. Outside dry
	// run the version must resolve to the platform's internal reference by
	// name lookup; an unresolved version is omitted (never fabricated) and
	// logged as a warning. In dry run the raw version name passes through
	// for display.
	Translate(ctx context.Context, iss *issue.Issue, project string, dryRun bool) map[string]any

	// GetExisting queries the platform's current versions and tags for
	// reconciliation diffing.
	GetExisting(ctx context.Context, project string) (versions, tags []models.Resource, err error)

	CreateVersion(ctx context.Context, project, name string, opts ResourceOpts) (models.Resource, error)
	CreateTag(ctx context.Context, project, name string, opts ResourceOpts) (models.Resource, error)
	CreateIssue(ctx context.Context, project string, params map[string]any) (models.IssueRef, error)

	// Configure prepares the site from its config map (url, token, ...).
	Configure(config map[string]any) error
}

// ResourceOpts carries optional creation attributes. Only tags use them.
type ResourceOpts struct {
	Color       string
	Description string
}

// Gateway is the raw platform capability surface a site adapter consumes.
// Implementations wrap the platform client library, apply retry/backoff, and
// surface every failure as a *PlatformError.
type Gateway interface {
	TestConnection(ctx context.Context) error

	CreateIssue(ctx context.Context, project string, params map[string]any) (models.IssueRef, error)
	CloseIssue(ctx context.Context, project, id string) error

	FindVersion(ctx context.Context, project, name string) (*models.Resource, error)
	CreateVersion(ctx context.Context, project, name, description string) (models.Resource, error)
	ListVersions(ctx context.Context, project string) ([]models.Resource, error)
	DeleteVersion(ctx context.Context, project, id string) error

	FindTag(ctx context.Context, project, name string) (*models.Resource, error)
	CreateTag(ctx context.Context, project, name, color, description string) (models.Resource, error)
	ListTags(ctx context.Context, project string) ([]models.Resource, error)
	DeleteTag(ctx context.Context, project, name string) error
}

// PlatformError wraps a platform/transport failure with the site and
// operation that produced it.
type PlatformError struct {
	Site string
	Op   string
	Err  error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Site, e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// WrapPlatform wraps err as a PlatformError unless it is nil or already one.
func WrapPlatform(site, op string, err error) error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*PlatformError); ok {
		return pe
	}
	return &PlatformError{Site: site, Op: op, Err: err}
}

// ErrSiteNotFound is returned when no site is registered under a name.
var ErrSiteNotFound = error(ErrorSiteNotFound("site not found"))

// ErrorSiteNotFound is returned when a requested site has no registration.
type ErrorSiteNotFound string

func (e ErrorSiteNotFound) Error() string {
	return string(e)
}

// Registry maps a platform key to a concrete site implementation.
type Registry struct {
	sites map[string]Site
}

// NewRegistry creates an empty site registry.
func NewRegistry() *Registry {
	return &Registry{sites: make(map[string]Site)}
}

// Register registers a site under its platform key.
func (r *Registry) Register(name string, site Site) {
	r.sites[name] = site
}

// Names lists the registered platform keys.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sites))
	for n := range r.sites {
		names = append(names, n)
	}
	return names
}

// Create returns the site registered under name, configured with config.
func (r *Registry) Create(name string, config map[string]any) (Site, error) {
	site, ok := r.sites[name]
	if !ok {
		return nil, ErrSiteNotFound
	}
	if err := site.Configure(config); err != nil {
		return nil, err
	}
	return site, nil
}
