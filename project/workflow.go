package project

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/git"
	"github.com/bygga/bygga/repository"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// WorkflowService manages workflow bindings and checks them against the remote repository
type WorkflowService struct {
	workflowRepository repository.WorkflowRepository
	inspector          *git.Inspector
}

var _ WorkflowManager = (*WorkflowService)(nil)

func (s *WorkflowService) List(ctx context.Context, filter repository.WorkflowFilter) (*repository.Page[*domain.Workflow], error) {
	page, err := s.workflowRepository.List(ctx, filter)
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "list_workflows",
			"error", err)
		return nil, err
	}
	return page, nil
}

func (s *WorkflowService) Get(ctx context.Context, id int64) (*domain.Workflow, error) {
	workflow, err := s.workflowRepository.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("workflow", err)
	}
	return workflow, nil
}

func (s *WorkflowService) Create(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error) {
	if err := validateWorkflow(workflow); err != nil {
		return nil, err
	}

	created, err := s.workflowRepository.Create(ctx, workflow)
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "create_workflow",
			"workflow_name", workflow.Name,
			"error", err)
		return nil, err
	}

	slog.Info("Workflow created", "workflow_id", created.ID, "workflow_name", created.Name)
	return created, nil
}

// Update replaces a workflow. An empty token keeps the stored one.
func (s *WorkflowService) Update(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error) {
	existing, err := s.Get(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}
	if err := validateWorkflow(workflow); err != nil {
		return nil, err
	}
	workflow.CreatedAt = existing.CreatedAt

	if err := s.workflowRepository.Update(ctx, workflow); err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "update_workflow",
			"workflow_id", workflow.ID,
			"error", err)
		return nil, notFound("workflow", err)
	}
	return s.Get(ctx, workflow.ID)
}

// Remove deletes a workflow. Projects bound to it are unbound.
func (s *WorkflowService) Remove(ctx context.Context, id int64) error {
	if err := s.workflowRepository.Delete(ctx, id); err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "remove_workflow",
			"workflow_id", id,
			"error", err)
		return notFound("workflow", err)
	}
	slog.Info("Workflow removed", "workflow_id", id)
	return nil
}

// Verify checks that the workflow's repository is reachable with its token and its branch exists
func (s *WorkflowService) Verify(ctx context.Context, id int64) (*git.RemoteInfo, error) {
	workflow, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	info, err := s.inspector.VerifyWorkflow(ctx, workflow)
	switch {
	case err == nil:
		return info, nil
	case errors.Is(err, git.ErrBranchNotFound):
		return info, domain.ValidationError("branch %q does not exist in %s/%s", info.Branch, workflow.RepoOwner, workflow.RepoName)
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrRepositoryNotFound):
		return nil, domain.ValidationError("%s", FormatErrorForUser(err))
	default:
		return nil, domain.UpstreamError("failed to reach the workflow repository", err)
	}
}

func validateWorkflow(w *domain.Workflow) error {
	w.Name = strings.TrimSpace(w.Name)
	w.RepoOwner = strings.TrimSpace(w.RepoOwner)
	w.RepoName = strings.TrimSpace(w.RepoName)
	w.WorkflowFile = strings.TrimSpace(w.WorkflowFile)

	switch {
	case w.Name == "":
		return domain.ValidationError("name is required")
	case w.RepoOwner == "":
		return domain.ValidationError("repo_owner is required")
	case w.RepoName == "":
		return domain.ValidationError("repo_name is required")
	case w.WorkflowFile == "":
		return domain.ValidationError("workflow_file is required")
	}

	switch path.Ext(w.WorkflowFile) {
	case ".yml", ".yaml":
	default:
		return domain.ValidationError("workflow_file must be a .yml or .yaml file")
	}

	if w.Branch == "" {
		w.Branch = domain.DefaultBranch
	}
	return nil
}

func NewWorkflowService(workflowRepository repository.WorkflowRepository, inspector *git.Inspector) *WorkflowService {
	return &WorkflowService{
		workflowRepository: workflowRepository,
		inspector:          inspector,
	}
}
