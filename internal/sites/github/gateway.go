package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	github "github.com/google/go-github/v84/github"

	"github.com/DocOps/issuer/internal/retry"
	"github.com/DocOps/issuer/internal/sites"
	"github.com/DocOps/issuer/pkg/models"
)

// Gateway wraps the GitHub REST client behind the sites.Gateway capability
// surface. Projects are addressed as "owner/repo".
type Gateway struct {
	client   *github.Client
	retryCfg retry.Config
}

// NewGateway creates a Gateway authenticated with the given token.
func NewGateway(token string) *Gateway {
	return &Gateway{
		client:   github.NewClient(nil).WithAuthToken(token),
		retryCfg: retry.DefaultConfig(),
	}
}

// TestConnection verifies the token by fetching the authenticated user.
func (g *Gateway) TestConnection(ctx context.Context) error {
	return g.call(ctx, "test connection", func() error {
		_, _, err := g.client.Users.Get(ctx, "")
		return err
	})
}

// issueRequest maps translated parameters onto the wire request.
func issueRequest(params map[string]any) *github.IssueRequest {
	req := &github.IssueRequest{}
	if v, ok := params["title"].(string); ok {
		req.Title = github.Ptr(v)
	}
	if v, ok := params["body"].(string); ok {
		req.Body = github.Ptr(v)
	}
	if v, ok := params["labels"].([]string); ok && len(v) > 0 {
		req.Labels = &v
	}
	if v, ok := params["assignee"].(string); ok && v != "" {
		req.Assignee = github.Ptr(v)
	}
	if v, ok := params["milestone_number"].(string); ok {
		if n, err := strconv.Atoi(v); err == nil {
			req.Milestone = github.Ptr(n)
		}
	}
	if v, ok := params["type"].(string); ok && v != "" {
		req.Type = github.Ptr(v)
	}
	return req
}

// CreateIssue posts an issue built from translated parameters.
func (g *Gateway) CreateIssue(ctx context.Context, project string, params map[string]any) (models.IssueRef, error) {
	owner, repo, err := splitProject(project)
	if err != nil {
		return models.IssueRef{}, err
	}

	req := issueRequest(params)

	var created *github.Issue
	err = g.call(ctx, "create issue", func() error {
		var err error
		created, _, err = g.client.Issues.Create(ctx, owner, repo, req)
		return err
	})
	if err != nil {
		return models.IssueRef{}, err
	}
	return models.IssueRef{
		ID:    strconv.Itoa(created.GetNumber()),
		Title: created.GetTitle(),
		URL:   created.GetHTMLURL(),
	}, nil
}

// CloseIssue closes an issue by number.
func (g *Gateway) CloseIssue(ctx context.Context, project, id string) error {
	owner, repo, err := splitProject(project)
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid issue number %q: %w", id, err)
	}
	return g.call(ctx, "close issue", func() error {
		_, _, err := g.client.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{
			State: github.Ptr("closed"),
		})
		return err
	})
}

// FindVersion looks up a milestone by title across open and closed states.
// A nil resource means absence.
func (g *Gateway) FindVersion(ctx context.Context, project, name string) (*models.Resource, error) {
	versions, err := g.ListVersions(ctx, project)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Name == name {
			res := v
			return &res, nil
		}
	}
	return nil, nil
}

// CreateVersion creates a milestone.
func (g *Gateway) CreateVersion(ctx context.Context, project, name, description string) (models.Resource, error) {
	owner, repo, err := splitProject(project)
	if err != nil {
		return models.Resource{}, err
	}

	m := &github.Milestone{Title: github.Ptr(name)}
	if description != "" {
		m.Description = github.Ptr(description)
	}

	var created *github.Milestone
	err = g.call(ctx, "create milestone", func() error {
		var err error
		created, _, err = g.client.Issues.CreateMilestone(ctx, owner, repo, m)
		return err
	})
	if err != nil {
		return models.Resource{}, err
	}
	return milestoneResource(created), nil
}

// ListVersions lists the repository's milestones in all states.
func (g *Gateway) ListVersions(ctx context.Context, project string) ([]models.Resource, error) {
	owner, repo, err := splitProject(project)
	if err != nil {
		return nil, err
	}

	var milestones []*github.Milestone
	err = g.call(ctx, "list milestones", func() error {
		var err error
		milestones, _, err = g.client.Issues.ListMilestones(ctx, owner, repo, &github.MilestoneListOptions{
			State:       "all",
			ListOptions: github.ListOptions{PerPage: 100},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Resource, 0, len(milestones))
	for _, m := range milestones {
		out = append(out, milestoneResource(m))
	}
	return out, nil
}

// DeleteVersion deletes a milestone by number.
func (g *Gateway) DeleteVersion(ctx context.Context, project, id string) error {
	owner, repo, err := splitProject(project)
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid milestone number %q: %w", id, err)
	}
	return g.call(ctx, "delete milestone", func() error {
		_, err := g.client.Issues.DeleteMilestone(ctx, owner, repo, number)
		return err
	})
}

// FindTag looks up a label by name. A nil resource means absence.
func (g *Gateway) FindTag(ctx context.Context, project, name string) (*models.Resource, error) {
	owner, repo, err := splitProject(project)
	if err != nil {
		return nil, err
	}

	var label *github.Label
	err = g.call(ctx, "find label", func() error {
		var resp *github.Response
		var err error
		label, resp, err = g.client.Issues.GetLabel(ctx, owner, repo, name)
		if resp != nil && resp.StatusCode == 404 {
			label = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if label == nil {
		return nil, nil
	}
	res := labelResource(label)
	return &res, nil
}

// CreateTag creates a label. GitHub expects the color without a leading "#".
func (g *Gateway) CreateTag(ctx context.Context, project, name, color, description string) (models.Resource, error) {
	owner, repo, err := splitProject(project)
	if err != nil {
		return models.Resource{}, err
	}

	if color == "" {
		color = "dddddd"
	}
	label := &github.Label{
		Name:  github.Ptr(name),
		Color: github.Ptr(strings.TrimPrefix(color, "#")),
	}
	if description != "" {
		label.Description = github.Ptr(description)
	}

	var created *github.Label
	err = g.call(ctx, "create label", func() error {
		var err error
		created, _, err = g.client.Issues.CreateLabel(ctx, owner, repo, label)
		return err
	})
	if err != nil {
		return models.Resource{}, err
	}
	return labelResource(created), nil
}

// ListTags lists the repository's labels.
func (g *Gateway) ListTags(ctx context.Context, project string) ([]models.Resource, error) {
	owner, repo, err := splitProject(project)
	if err != nil {
		return nil, err
	}

	var labels []*github.Label
	err = g.call(ctx, "list labels", func() error {
		var err error
		labels, _, err = g.client.Issues.ListLabels(ctx, owner, repo, &github.ListOptions{PerPage: 100})
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Resource, 0, len(labels))
	for _, l := range labels {
		out = append(out, labelResource(l))
	}
	return out, nil
}

// DeleteTag deletes a label by name.
func (g *Gateway) DeleteTag(ctx context.Context, project, name string) error {
	owner, repo, err := splitProject(project)
	if err != nil {
		return err
	}
	return g.call(ctx, "delete label", func() error {
		_, err := g.client.Issues.DeleteLabel(ctx, owner, repo, name)
		return err
	})
}

func (g *Gateway) call(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(ctx, g.retryCfg, fn)
	return sites.WrapPlatform("github", op, err)
}

func splitProject(project string) (owner, repo string, err error) {
	parts := strings.SplitN(project, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github project must be owner/repo, got %q", project)
	}
	return parts[0], parts[1], nil
}

func milestoneResource(m *github.Milestone) models.Resource {
	return models.Resource{
		ID:   strconv.Itoa(m.GetNumber()),
		Name: m.GetTitle(),
		URL:  m.GetHTMLURL(),
	}
}

func labelResource(l *github.Label) models.Resource {
	return models.Resource{
		ID:   strconv.FormatInt(l.GetID(), 10),
		Name: l.GetName(),
		URL:  l.GetURL(),
	}
}
