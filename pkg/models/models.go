package models

// Resource identifies a version (milestone) or tag (label) on the target
// platform. ID is the platform's identifier rendered as a string so that
// numeric-ID platforms (GitLab) and name-keyed platforms share one shape.
type Resource struct {
	ID   string
	Name string
	URL  string
}

// IssueRef describes an issue that exists on the target platform.
type IssueRef struct {
	ID    string
	Title string
	URL   string
}

// Artifact is one entry in a run's created-artifact ledger.
type Artifact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Ledger kinds tracked per run.
const (
	KindIssue   = "issues"
	KindVersion = "versions"
	KindTag     = "tags"
)

// ResourceArtifact converts a platform resource into a ledger artifact.
func ResourceArtifact(r Resource) Artifact {
	return Artifact{ID: r.ID, Name: r.Name, URL: r.URL}
}

// IssueArtifact converts a created issue into a ledger artifact.
func IssueArtifact(ref IssueRef) Artifact {
	return Artifact{ID: ref.ID, Name: ref.Title, URL: ref.URL}
}
