// Package ci wraps the GitHub Actions API calls used to dispatch and observe workflow runs.
package ci

import (
	"context"
	"fmt"
	"time"
)

// WorkflowRef addresses a workflow file on a branch, with the token used to call the API
type WorkflowRef struct {
	Owner        string
	Repo         string
	WorkflowFile string
	Branch       string
	Token        string
}

func (r WorkflowRef) String() string {
	return fmt.Sprintf("%s/%s/%s@%s", r.Owner, r.Repo, r.WorkflowFile, r.Branch)
}

// Run is a workflow run as reported by the CI system
type Run struct {
	ID         int64
	Status     string
	Conclusion string
	HTMLURL    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Artifact is a file bundle uploaded by a run
type Artifact struct {
	ID          int64
	Name        string
	SizeInBytes int64
}

// Client is the subset of the CI API bygga depends on
type Client interface {
	// ListRuns returns the most recent runs of the workflow on its branch, newest first
	ListRuns(ctx context.Context, ref WorkflowRef, perPage int) ([]Run, error)
	// Dispatch triggers the workflow on its branch. The API returns no run id.
	Dispatch(ctx context.Context, ref WorkflowRef, inputs map[string]any) error
	GetRun(ctx context.Context, ref WorkflowRef, runID int64) (*Run, error)
	ListArtifacts(ctx context.Context, ref WorkflowRef, runID int64) ([]Artifact, error)
}

// LatestRunID returns the newest run id for the workflow, or 0 when it has never run
func LatestRunID(ctx context.Context, client Client, ref WorkflowRef) (int64, error) {
	runs, err := client.ListRuns(ctx, ref, 1)
	if err != nil {
		return 0, err
	}
	if len(runs) == 0 {
		return 0, nil
	}
	return runs[0].ID, nil
}

// ArtifactDownloadURL is the browser URL of an artifact of a run
func ArtifactDownloadURL(owner, repo string, runID, artifactID int64) string {
	return fmt.Sprintf("https://github.com/%s/%s/actions/runs/%d/artifacts/%d", owner, repo, runID, artifactID)
}
