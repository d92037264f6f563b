package gitlab

import (
	"context"
	"fmt"
	"strconv"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/DocOps/issuer/internal/retry"
	"github.com/DocOps/issuer/internal/sites"
	"github.com/DocOps/issuer/pkg/models"
)

// Gateway wraps the GitLab API client behind the sites.Gateway capability
// surface. All retry/backoff lives here; callers see a single attempt that
// either succeeds or fails with a *sites.PlatformError.
type Gateway struct {
	client   *gitlab.Client
	retryCfg retry.Config
}

// NewGateway creates a Gateway against the given GitLab instance. An empty
// baseURL targets gitlab.com.
func NewGateway(baseURL, token string) (*Gateway, error) {
	var opts []gitlab.ClientOptionFunc
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(fmt.Sprintf("%s/api/v4", baseURL)))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return &Gateway{client: client, retryCfg: retry.DefaultConfig()}, nil
}

// TestConnection verifies the token by fetching the authenticated user.
func (g *Gateway) TestConnection(ctx context.Context) error {
	return g.call(ctx, "test connection", func() error {
		_, _, err := g.client.Users.CurrentUser(gitlab.WithContext(ctx))
		return err
	})
}

// createIssueOptions maps translated parameters onto the wire options.
// Assignee resolution needs an API round trip and stays in CreateIssue.
func createIssueOptions(params map[string]any) *gitlab.CreateIssueOptions {
	opt := &gitlab.CreateIssueOptions{}
	if v, ok := params["title"].(string); ok {
		opt.Title = gitlab.Ptr(v)
	}
	if v, ok := params["description"].(string); ok {
		opt.Description = gitlab.Ptr(v)
	}
	if v, ok := params["labels"].([]string); ok && len(v) > 0 {
		labels := gitlab.LabelOptions(v)
		opt.Labels = &labels
	}
	if v, ok := params["milestone_id"].(string); ok {
		if id, err := strconv.Atoi(v); err == nil {
			opt.MilestoneID = gitlab.Ptr(id)
		}
	}
	if v, ok := params["issue_type"].(string); ok && v != "" {
		opt.IssueType = gitlab.Ptr(v)
	}
	return opt
}

// CreateIssue posts an issue built from translated parameters.
func (g *Gateway) CreateIssue(ctx context.Context, project string, params map[string]any) (models.IssueRef, error) {
	opt := createIssueOptions(params)
	if v, ok := params["assignee"].(string); ok && v != "" {
		id, err := g.userID(ctx, v)
		if err != nil {
			return models.IssueRef{}, err
		}
		if id > 0 {
			opt.AssigneeIDs = &[]int{id}
		}
	}

	var created *gitlab.Issue
	err := g.call(ctx, "create issue", func() error {
		var err error
		created, _, err = g.client.Issues.CreateIssue(project, opt, gitlab.WithContext(ctx))
		return err
	})
	if err != nil {
		return models.IssueRef{}, err
	}
	return models.IssueRef{
		ID:    strconv.Itoa(created.IID),
		Title: created.Title,
		URL:   created.WebURL,
	}, nil
}

// CloseIssue closes an issue by its IID.
func (g *Gateway) CloseIssue(ctx context.Context, project, id string) error {
	iid, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid issue id %q: %w", id, err)
	}
	return g.call(ctx, "close issue", func() error {
		_, _, err := g.client.Issues.UpdateIssue(project, iid, &gitlab.UpdateIssueOptions{
			StateEvent: gitlab.Ptr("close"),
		}, gitlab.WithContext(ctx))
		return err
	})
}

// FindVersion looks up a milestone by title. A nil resource means the
// milestone does not exist; that is not an error.
func (g *Gateway) FindVersion(ctx context.Context, project, name string) (*models.Resource, error) {
	var milestones []*gitlab.Milestone
	err := g.call(ctx, "find milestone", func() error {
		var err error
		milestones, _, err = g.client.Milestones.ListMilestones(project, &gitlab.ListMilestonesOptions{
			Title: gitlab.Ptr(name),
		}, gitlab.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, m := range milestones {
		if m.Title == name {
			res := milestoneResource(m)
			return &res, nil
		}
	}
	return nil, nil
}

// CreateVersion creates a milestone.
func (g *Gateway) CreateVersion(ctx context.Context, project, name, description string) (models.Resource, error) {
	opt := &gitlab.CreateMilestoneOptions{Title: gitlab.Ptr(name)}
	if description != "" {
		opt.Description = gitlab.Ptr(description)
	}

	var created *gitlab.Milestone
	err := g.call(ctx, "create milestone", func() error {
		var err error
		created, _, err = g.client.Milestones.CreateMilestone(project, opt, gitlab.WithContext(ctx))
		return err
	})
	if err != nil {
		return models.Resource{}, err
	}
	return milestoneResource(created), nil
}

// ListVersions lists the project's milestones.
func (g *Gateway) ListVersions(ctx context.Context, project string) ([]models.Resource, error) {
	var milestones []*gitlab.Milestone
	err := g.call(ctx, "list milestones", func() error {
		var err error
		milestones, _, err = g.client.Milestones.ListMilestones(project, &gitlab.ListMilestonesOptions{
			ListOptions: gitlab.ListOptions{PerPage: 100},
		}, gitlab.WithContext(ctx))
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

// DeleteVersion deletes a milestone by ID.
func (g *Gateway) DeleteVersion(ctx context.Context, project, id string) error {
	mid, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid milestone id %q: %w", id, err)
	}
	return g.call(ctx, "delete milestone", func() error {
		_, err := g.client.Milestones.DeleteMilestone(project, mid, gitlab.WithContext(ctx))
		return err
	})
}

// FindTag looks up a label by name. A nil resource means absence.
func (g *Gateway) FindTag(ctx context.Context, project, name string) (*models.Resource, error) {
	var labels []*gitlab.Label
	err := g.call(ctx, "find label", func() error {
		var err error
		labels, _, err = g.client.Labels.ListLabels(project, &gitlab.ListLabelsOptions{
			Search: gitlab.Ptr(name),
		}, gitlab.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, l := range labels {
		if l.Name == name {
			res := labelResource(l)
			return &res, nil
		}
	}
	return nil, nil
}

// CreateTag creates a label. GitLab requires a color; default to a neutral
// gray when the caller provides none.
func (g *Gateway) CreateTag(ctx context.Context, project, name, color, description string) (models.Resource, error) {
	if color == "" {
		color = "#dddddd"
	}
	opt := &gitlab.CreateLabelOptions{
		Name:  gitlab.Ptr(name),
		Color: gitlab.Ptr(color),
	}
	if description != "" {
		opt.Description = gitlab.Ptr(description)
	}

	var created *gitlab.Label
	err := g.call(ctx, "create label", func() error {
		var err error
		created, _, err = g.client.Labels.CreateLabel(project, opt, gitlab.WithContext(ctx))
		return err
	})
	if err != nil {
		return models.Resource{}, err
	}
	return labelResource(created), nil
}

// ListTags lists the project's labels.
func (g *Gateway) ListTags(ctx context.Context, project string) ([]models.Resource, error) {
	var labels []*gitlab.Label
	err := g.call(ctx, "list labels", func() error {
		var err error
		labels, _, err = g.client.Labels.ListLabels(project, &gitlab.ListLabelsOptions{
			ListOptions: gitlab.ListOptions{PerPage: 100},
		}, gitlab.WithContext(ctx))
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
	return g.call(ctx, "delete label", func() error {
		_, err := g.client.Labels.DeleteLabel(project, name, nil, gitlab.WithContext(ctx))
		return err
	})
}

// userID resolves a username to a numeric user ID. Unknown users resolve to
// zero without error so that submission degrades instead of failing.
func (g *Gateway) userID(ctx context.Context, username string) (int, error) {
	var users []*gitlab.User
	err := g.call(ctx, "find user", func() error {
		var err error
		users, _, err = g.client.Users.ListUsers(&gitlab.ListUsersOptions{
			Username: gitlab.Ptr(username),
		}, gitlab.WithContext(ctx))
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}
	return users[0].ID, nil
}

// call runs op with backoff and wraps any terminal failure as a typed
// platform error.
func (g *Gateway) call(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(ctx, g.retryCfg, fn)
	return sites.WrapPlatform("gitlab", op, err)
}

func milestoneResource(m *gitlab.Milestone) models.Resource {
	return models.Resource{
		ID:   strconv.Itoa(m.ID),
		Name: m.Title,
		URL:  m.WebURL,
	}
}

func labelResource(l *gitlab.Label) models.Resource {
	return models.Resource{
		ID:   strconv.Itoa(l.ID),
		Name: l.Name,
	}
}
