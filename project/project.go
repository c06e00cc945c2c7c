// Package project provides the admin services for projects, workflows and secrets.
package project

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/repository"
	"gorm.io/gorm"
)

// ProjectService manages projects and their deploy methods, pricing and gateway credentials
type ProjectService struct {
	projectRepository  repository.ProjectRepository
	workflowRepository repository.WorkflowRepository
}

// Ensure ProjectService implements ProjectManager
var _ ProjectManager = (*ProjectService)(nil)

// List returns projects matching filter
func (s *ProjectService) List(ctx context.Context, filter repository.ProjectFilter) (*repository.Page[*domain.Project], error) {
	page, err := s.projectRepository.List(ctx, filter)
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "list_projects",
			"error", err)
		return nil, err
	}
	return page, nil
}

// Get retrieves a project by ID
func (s *ProjectService) Get(ctx context.Context, id int64) (*domain.Project, error) {
	project, err := s.projectRepository.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("project", err)
	}
	return project, nil
}

// Create creates a new project
func (s *ProjectService) Create(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	if err := s.validate(ctx, project); err != nil {
		return nil, err
	}

	created, err := s.projectRepository.Create(ctx, project)
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "create_project",
			"project_name", project.Name,
			"error", err)
		return nil, err // Pass through as-is
	}

	slog.Info("Project created", "project_id", created.ID, "project_name", created.Name)
	return created, nil
}

// Update replaces a project. Omitted payment configuration keeps the stored credentials.
func (s *ProjectService) Update(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	existing, err := s.Get(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, project); err != nil {
		return nil, err
	}

	if project.PaymentConfig == nil {
		project.PaymentConfig = existing.PaymentConfig
	}
	project.CreatedAt = existing.CreatedAt

	if err := s.projectRepository.Update(ctx, project); err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "update_project",
			"project_id", project.ID,
			"error", err)
		return nil, notFound("project", err)
	}
	return s.Get(ctx, project.ID)
}

// Remove deletes a project. Its secrets go with it, its tasks are kept.
func (s *ProjectService) Remove(ctx context.Context, id int64) error {
	if err := s.projectRepository.Delete(ctx, id); err != nil {
		slog.Error("Service operation failed",
			"layer", "service",
			"operation", "remove_project",
			"project_id", id,
			"error", err)
		return notFound("project", err)
	}
	slog.Info("Project removed", "project_id", id)
	return nil
}

func (s *ProjectService) validate(ctx context.Context, project *domain.Project) error {
	project.Name = strings.TrimSpace(project.Name)
	if project.Name == "" {
		return domain.ValidationError("name is required")
	}
	if err := project.ValidateDeployMethods(); err != nil {
		return domain.ValidationError("%s", err.Error())
	}
	for _, price := range []*float64{project.Pricing.Monthly, project.Pricing.Yearly, project.Pricing.PerUse} {
		if price != nil && *price < 0 {
			return domain.ValidationError("prices cannot be negative")
		}
	}

	if project.WorkflowID != nil {
		_, err := s.workflowRepository.FindByID(ctx, *project.WorkflowID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ValidationError("linked workflow does not exist")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// notFound turns a missing record into a NotFound error and passes other errors through
func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError(what)
	}
	return err
}

// NewProjectService creates a new ProjectService with dependency injection
func NewProjectService(
	projectRepository repository.ProjectRepository,
	workflowRepository repository.WorkflowRepository,
) *ProjectService {
	return &ProjectService{
		projectRepository:  projectRepository,
		workflowRepository: workflowRepository,
	}
}
