package domain

import "time"

// Workflow binds projects to a workflow file in a GitHub repository
type Workflow struct {
	ID           int64
	Name         string
	Description  *string
	RepoOwner    string
	RepoName     string
	WorkflowFile string
	Branch       string
	GitHubToken  string // never leaves the process unencrypted
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCredentials reports whether dispatch payloads can be encrypted for this workflow
func (w *Workflow) HasCredentials() bool {
	return w.GitHubToken != ""
}

// Redacted returns a copy safe to hand to API callers
func (w *Workflow) Redacted() *Workflow {
	redacted := *w
	if redacted.GitHubToken != "" {
		redacted.GitHubToken = "********"
	}
	return &redacted
}
