package project

import (
	"context"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/git"
	"github.com/bygga/bygga/repository"
)

// ProjectManager defines the contract for project management operations
type ProjectManager interface {
	List(ctx context.Context, filter repository.ProjectFilter) (*repository.Page[*domain.Project], error)
	Get(ctx context.Context, id int64) (*domain.Project, error)
	Create(ctx context.Context, project *domain.Project) (*domain.Project, error)
	Update(ctx context.Context, project *domain.Project) (*domain.Project, error)
	Remove(ctx context.Context, id int64) error
}

// WorkflowManager defines the contract for workflow management operations
type WorkflowManager interface {
	List(ctx context.Context, filter repository.WorkflowFilter) (*repository.Page[*domain.Workflow], error)
	Get(ctx context.Context, id int64) (*domain.Workflow, error)
	Create(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error)
	Update(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error)
	Remove(ctx context.Context, id int64) error
	Verify(ctx context.Context, id int64) (*git.RemoteInfo, error)
}

// SecretManager defines the contract for secret management operations
type SecretManager interface {
	List(ctx context.Context, filter repository.SecretFilter) (*repository.Page[*domain.Secret], error)
	Get(ctx context.Context, id int64) (*domain.Secret, error)
	Create(ctx context.Context, secret *domain.Secret) (*domain.Secret, error)
	Update(ctx context.Context, secret *domain.Secret) (*domain.Secret, error)
	Remove(ctx context.Context, id int64) error
	Validate(ctx context.Context, value string, projectID int64) (bool, error)
}
