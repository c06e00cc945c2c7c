// Package git inspects remote repositories without cloning them.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bygga/bygga/domain"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

const (
	DefaultBaseURL = "https://github.com"
	DefaultTimeout = 30 * time.Second

	// tokenUser is the basic auth user GitHub expects alongside an access token
	tokenUser = "x-access-token"
)

// ErrBranchNotFound is returned when the requested branch does not exist on the remote
var ErrBranchNotFound = errors.New("branch not found")

// RemoteInfo is what ls-remote tells about a repository
type RemoteInfo struct {
	URL           string   `json:"url"`
	DefaultBranch string   `json:"default_branch"`
	Branch        string   `json:"branch"`
	Commit        string   `json:"commit"`
	Branches      []string `json:"branches"`
}

type Inspector struct {
	baseURL string
	timeout time.Duration
}

func NewInspector(baseURL string, timeout time.Duration) *Inspector {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Inspector{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
	}
}

// RepositoryURL returns the clone URL of owner/repo
func (i *Inspector) RepositoryURL(owner, repo string) string {
	return fmt.Sprintf("%s/%s/%s.git", i.baseURL, owner, repo)
}

// VerifyWorkflow checks that the workflow's repository is reachable with its token
// and that its branch exists. An empty branch is checked against the default branch.
func (i *Inspector) VerifyWorkflow(ctx context.Context, w *domain.Workflow) (*RemoteInfo, error) {
	if w.RepoOwner == "" || w.RepoName == "" {
		return nil, fmt.Errorf("workflow has no repository configured")
	}
	return i.Inspect(ctx, i.RepositoryURL(w.RepoOwner, w.RepoName), w.GitHubToken, w.Branch)
}

// Inspect lists the references of gitURL and resolves branch, or the default branch when empty
func (i *Inspector) Inspect(ctx context.Context, gitURL, token, branch string) (*RemoteInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	remote := git.NewRemote(nil, &config.RemoteConfig{
		Name: "origin",
		URLs: []string{gitURL},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{
		Auth: authMethod(token),
	})
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "git",
			"operation", "list_remote",
			"git_url", gitURL,
			"error", err)
		return nil, fmt.Errorf("failed to list remote references: %w", err)
	}

	info := &RemoteInfo{
		URL:           gitURL,
		DefaultBranch: defaultBranch(refs),
		Branches:      []string{},
	}
	hashes := make(map[string]string)
	for _, ref := range refs {
		if ref.Name().IsBranch() {
			name := ref.Name().Short()
			info.Branches = append(info.Branches, name)
			hashes[name] = ref.Hash().String()
		}
	}
	sort.Strings(info.Branches)

	info.Branch = branch
	if info.Branch == "" {
		info.Branch = info.DefaultBranch
	}
	commit, ok := hashes[info.Branch]
	if !ok {
		return info, fmt.Errorf("%w: %q", ErrBranchNotFound, info.Branch)
	}
	info.Commit = commit

	slog.Debug("Inspected remote repository",
		"git_url", gitURL,
		"branch", info.Branch,
		"commit", commit)
	return info, nil
}

// defaultBranch finds the branch HEAD points at, either symbolically or by hash
func defaultBranch(refs []*plumbing.Reference) string {
	for _, ref := range refs {
		if ref.Name() != plumbing.HEAD {
			continue
		}
		if ref.Type() == plumbing.SymbolicReference {
			if target := ref.Target(); target.IsBranch() {
				return target.Short()
			}
			continue
		}
		for _, other := range refs {
			if other.Hash() == ref.Hash() && other.Name().IsBranch() {
				return other.Name().Short()
			}
		}
	}
	return ""
}

func authMethod(token string) transport.AuthMethod {
	if token == "" {
		return nil // Public repo
	}
	return &http.BasicAuth{
		Username: tokenUser,
		Password: token,
	}
}
