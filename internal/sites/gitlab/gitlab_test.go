package gitlab

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DocOps/issuer/internal/issue"
	"github.com/DocOps/issuer/internal/sites"
	"github.com/DocOps/issuer/pkg/models"
)

// fakeGateway is an in-memory platform standing in for GitLab.
type fakeGateway struct {
	versions map[string]models.Resource
	tags     map[string]models.Resource

	findVersionCalls int
	listErr          error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		versions: map[string]models.Resource{},
		tags:     map[string]models.Resource{},
	}
}

func (f *fakeGateway) TestConnection(ctx context.Context) error { return nil }

func (f *fakeGateway) CreateIssue(ctx context.Context, project string, params map[string]any) (models.IssueRef, error) {
	title, _ := params["title"].(string)
	return models.IssueRef{ID: "1", Title: title, URL: "https://gitlab.example.com/p/-/issues/1"}, nil
}

func (f *fakeGateway) CloseIssue(ctx context.Context, project, id string) error { return nil }

func (f *fakeGateway) FindVersion(ctx context.Context, project, name string) (*models.Resource, error) {
	f.findVersionCalls++
	if r, ok := f.versions[name]; ok {
		return &r, nil
	}
	return nil, nil
}

func (f *fakeGateway) CreateVersion(ctx context.Context, project, name, description string) (models.Resource, error) {
	r := models.Resource{ID: "100", Name: name}
	f.versions[name] = r
	return r, nil
}

func (f *fakeGateway) ListVersions(ctx context.Context, project string) ([]models.Resource, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Resource
	for _, r := range f.versions {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeGateway) DeleteVersion(ctx context.Context, project, id string) error { return nil }

func (f *fakeGateway) FindTag(ctx context.Context, project, name string) (*models.Resource, error) {
	if r, ok := f.tags[name]; ok {
		return &r, nil
	}
	return nil, nil
}

func (f *fakeGateway) CreateTag(ctx context.Context, project, name, color, description string) (models.Resource, error) {
	r := models.Resource{ID: "200", Name: name}
	f.tags[name] = r
	return r, nil
}

func (f *fakeGateway) ListTags(ctx context.Context, project string) ([]models.Resource, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Resource
	for _, r := range f.tags {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeGateway) DeleteTag(ctx context.Context, project, name string) error { return nil }

func resolvedIssue(t *testing.T, raw map[string]any) *issue.Issue {
	t.Helper()
	iss := issue.New(raw, nil)
	iss.ResolveTags(nil, nil)
	return iss
}

func TestTranslateResolvesMilestone(t *testing.T) {
	gw := newFakeGateway()
	gw.versions["1.0"] = models.Resource{ID: "42", Name: "1.0"}
	site := NewWithGateway(gw)

	iss := resolvedIssue(t, map[string]any{
		"summary":  "Fix login",
		"body":     "details",
		"tags":     []any{"bug"},
		"version":  "1.0",
		"assignee": "casey",
		"type":     "incident",
	})

	params := site.Translate(context.Background(), iss, "group/proj", false)
	assert.Equal(t, "Fix login", params["title"])
	assert.Equal(t, "details", params["description"])
	assert.Equal(t, []string{"bug"}, params["labels"])
	assert.Equal(t, "casey", params["assignee"])
	assert.Equal(t, "incident", params["issue_type"])
	assert.Equal(t, "42", params["milestone_id"])
	assert.NotContains(t, params, "milestone")
}

func TestCreateIssueOptionsCarryIssueType(t *testing.T) {
	opt := createIssueOptions(map[string]any{
		"title":      "Service outage",
		"issue_type": "incident",
	})
	require.NotNil(t, opt.Title)
	assert.Equal(t, "Service outage", *opt.Title)
	require.NotNil(t, opt.IssueType, "translated type must reach the wire options")
	assert.Equal(t, "incident", *opt.IssueType)

	opt = createIssueOptions(map[string]any{"title": "plain"})
	assert.Nil(t, opt.IssueType)
}

func TestTranslateOmitsUnresolvedMilestone(t *testing.T) {
	site := NewWithGateway(newFakeGateway())
	iss := resolvedIssue(t, map[string]any{"summary": "s", "version": "9.9"})

	params := site.Translate(context.Background(), iss, "group/proj", false)
	assert.NotContains(t, params, "milestone_id", "unresolved versions are omitted, never fabricated")
	assert.NotContains(t, params, "milestone")
}

func TestTranslateDryRunPassesRawVersion(t *testing.T) {
	gw := newFakeGateway()
	site := NewWithGateway(gw)
	iss := resolvedIssue(t, map[string]any{"summary": "s", "version": "2.0"})

	params := site.Translate(context.Background(), iss, "group/proj", true)
	assert.Equal(t, "2.0", params["milestone"])
	assert.Zero(t, gw.findVersionCalls, "dry run must not hit the platform")
}

func TestCreateVersionPopulatesRunCache(t *testing.T) {
	gw := newFakeGateway()
	site := NewWithGateway(gw)
	ctx := context.Background()

	_, err := site.CreateVersion(ctx, "group/proj", "1.0", sites.ResourceOpts{})
	require.NoError(t, err)

	// wipe the fake's store to simulate read-after-write lag: the cache
	// must still satisfy the lookup
	gw.versions = map[string]models.Resource{}
	gw.findVersionCalls = 0

	iss := resolvedIssue(t, map[string]any{"summary": "s", "version": "1.0"})
	params := site.Translate(ctx, iss, "group/proj", false)
	assert.Equal(t, "100", params["milestone_id"])
	assert.Zero(t, gw.findVersionCalls, "cached resource must be served without a platform call")
}

func TestGetExistingMergesCache(t *testing.T) {
	gw := newFakeGateway()
	site := NewWithGateway(gw)
	ctx := context.Background()

	_, err := site.CreateTag(ctx, "group/proj", "urgent", sites.ResourceOpts{})
	require.NoError(t, err)
	gw.tags = map[string]models.Resource{}

	_, tags, err := site.GetExisting(ctx, "group/proj")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "urgent", tags[0].Name)
}

func TestGetExistingPropagatesError(t *testing.T) {
	gw := newFakeGateway()
	gw.listErr = errors.New("boom")
	site := NewWithGateway(gw)

	_, _, err := site.GetExisting(context.Background(), "group/proj")
	require.Error(t, err)
}

func TestConfigureRequiresToken(t *testing.T) {
	site := New()
	err := site.Configure(map[string]any{"url": "https://gitlab.example.com"})
	require.Error(t, err)
}
