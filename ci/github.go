package ci

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// GitHubClient implements Client against the GitHub REST API
type GitHubClient struct {
	baseURL *url.URL
	timeout time.Duration
}

var _ Client = (*GitHubClient)(nil)

// NewGitHubClient creates a client for apiURL (https://api.github.com/ or a test server)
func NewGitHubClient(apiURL string, timeout time.Duration) (*GitHubClient, error) {
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	baseURL, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid github api url: %w", err)
	}
	return &GitHubClient{baseURL: baseURL, timeout: timeout}, nil
}

// client builds an API client authenticated with the workflow's token
func (c *GitHubClient) client(token string) *github.Client {
	httpClient := &http.Client{Timeout: c.timeout}
	if token != "" {
		httpClient.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   http.DefaultTransport,
		}
	}

	gh := github.NewClient(httpClient)
	gh.BaseURL = c.baseURL
	return gh
}

func (c *GitHubClient) ListRuns(ctx context.Context, ref WorkflowRef, perPage int) ([]Run, error) {
	opts := &github.ListWorkflowRunsOptions{
		Branch:      ref.Branch,
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	gh := c.client(ref.Token)
	var (
		runs *github.WorkflowRuns
		err  error
	)
	if id, ok := workflowID(ref.WorkflowFile); ok {
		runs, _, err = gh.Actions.ListWorkflowRunsByID(ctx, ref.Owner, ref.Repo, id, opts)
	} else {
		runs, _, err = gh.Actions.ListWorkflowRunsByFileName(ctx, ref.Owner, ref.Repo, ref.WorkflowFile, opts)
	}
	if err != nil {
		slog.Error("CI operation failed",
			"layer", "ci",
			"operation", "list_runs",
			"workflow", ref.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list workflow runs: %w", err)
	}

	result := make([]Run, 0, len(runs.WorkflowRuns))
	for _, r := range runs.WorkflowRuns {
		result = append(result, toRun(r))
	}
	return result, nil
}

func (c *GitHubClient) Dispatch(ctx context.Context, ref WorkflowRef, inputs map[string]any) error {
	event := github.CreateWorkflowDispatchEventRequest{
		Ref:    ref.Branch,
		Inputs: inputs,
	}

	gh := c.client(ref.Token)
	var err error
	if id, ok := workflowID(ref.WorkflowFile); ok {
		_, err = gh.Actions.CreateWorkflowDispatchEventByID(ctx, ref.Owner, ref.Repo, id, event)
	} else {
		_, err = gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, ref.Owner, ref.Repo, ref.WorkflowFile, event)
	}
	if err != nil {
		slog.Error("CI operation failed",
			"layer", "ci",
			"operation", "dispatch",
			"workflow", ref.String(),
			"error", err)
		return fmt.Errorf("failed to dispatch workflow: %w", err)
	}

	slog.Info("Workflow dispatched", "layer", "ci", "workflow", ref.String())
	return nil
}

func (c *GitHubClient) GetRun(ctx context.Context, ref WorkflowRef, runID int64) (*Run, error) {
	run, _, err := c.client(ref.Token).Actions.GetWorkflowRunByID(ctx, ref.Owner, ref.Repo, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow run %d: %w", runID, err)
	}
	r := toRun(run)
	return &r, nil
}

func (c *GitHubClient) ListArtifacts(ctx context.Context, ref WorkflowRef, runID int64) ([]Artifact, error) {
	list, _, err := c.client(ref.Token).Actions.ListWorkflowRunArtifacts(ctx, ref.Owner, ref.Repo, runID,
		&github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts of run %d: %w", runID, err)
	}

	artifacts := make([]Artifact, 0, len(list.Artifacts))
	for _, a := range list.Artifacts {
		artifacts = append(artifacts, Artifact{
			ID:          a.GetID(),
			Name:        a.GetName(),
			SizeInBytes: a.GetSizeInBytes(),
		})
	}
	return artifacts, nil
}

func toRun(r *github.WorkflowRun) Run {
	return Run{
		ID:         r.GetID(),
		Status:     r.GetStatus(),
		Conclusion: r.GetConclusion(),
		HTMLURL:    r.GetHTMLURL(),
		CreatedAt:  r.GetCreatedAt().Time,
		UpdatedAt:  r.GetUpdatedAt().Time,
	}
}

// workflowID reports whether the workflow identifier is a numeric workflow id rather than a file name
func workflowID(identifier string) (int64, bool) {
	id, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
