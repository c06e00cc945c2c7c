package mocks

import (
	"context"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/git"
	"github.com/bygga/bygga/repository"
)

// MockProjectManager implements the project.ProjectManager interface for testing
type MockProjectManager struct {
	ListFunc   func(ctx context.Context, filter repository.ProjectFilter) (*repository.Page[*domain.Project], error)
	GetFunc    func(ctx context.Context, id int64) (*domain.Project, error)
	CreateFunc func(ctx context.Context, project *domain.Project) (*domain.Project, error)
	UpdateFunc func(ctx context.Context, project *domain.Project) (*domain.Project, error)
	RemoveFunc func(ctx context.Context, id int64) error
}

func (m *MockProjectManager) List(ctx context.Context, filter repository.ProjectFilter) (*repository.Page[*domain.Project], error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return &repository.Page[*domain.Project]{Page: 1}, nil
}

func (m *MockProjectManager) Get(ctx context.Context, id int64) (*domain.Project, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, domain.NotFoundError("project")
}

func (m *MockProjectManager) Create(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, project)
	}
	return project, nil
}

func (m *MockProjectManager) Update(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, project)
	}
	return project, nil
}

func (m *MockProjectManager) Remove(ctx context.Context, id int64) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, id)
	}
	return nil
}

// MockWorkflowManager implements the project.WorkflowManager interface for testing
type MockWorkflowManager struct {
	ListFunc   func(ctx context.Context, filter repository.WorkflowFilter) (*repository.Page[*domain.Workflow], error)
	GetFunc    func(ctx context.Context, id int64) (*domain.Workflow, error)
	CreateFunc func(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error)
	UpdateFunc func(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error)
	RemoveFunc func(ctx context.Context, id int64) error
	VerifyFunc func(ctx context.Context, id int64) (*git.RemoteInfo, error)
}

func (m *MockWorkflowManager) List(ctx context.Context, filter repository.WorkflowFilter) (*repository.Page[*domain.Workflow], error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return &repository.Page[*domain.Workflow]{Page: 1}, nil
}

func (m *MockWorkflowManager) Get(ctx context.Context, id int64) (*domain.Workflow, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, domain.NotFoundError("workflow")
}

func (m *MockWorkflowManager) Create(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, workflow)
	}
	return workflow, nil
}

func (m *MockWorkflowManager) Update(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, workflow)
	}
	return workflow, nil
}

func (m *MockWorkflowManager) Remove(ctx context.Context, id int64) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, id)
	}
	return nil
}

func (m *MockWorkflowManager) Verify(ctx context.Context, id int64) (*git.RemoteInfo, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, id)
	}
	return &git.RemoteInfo{}, nil
}

// MockSecretManager implements the project.SecretManager interface for testing
type MockSecretManager struct {
	ListFunc     func(ctx context.Context, filter repository.SecretFilter) (*repository.Page[*domain.Secret], error)
	GetFunc      func(ctx context.Context, id int64) (*domain.Secret, error)
	CreateFunc   func(ctx context.Context, secret *domain.Secret) (*domain.Secret, error)
	UpdateFunc   func(ctx context.Context, secret *domain.Secret) (*domain.Secret, error)
	RemoveFunc   func(ctx context.Context, id int64) error
	ValidateFunc func(ctx context.Context, value string, projectID int64) (bool, error)
}

func (m *MockSecretManager) List(ctx context.Context, filter repository.SecretFilter) (*repository.Page[*domain.Secret], error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return &repository.Page[*domain.Secret]{Page: 1}, nil
}

func (m *MockSecretManager) Get(ctx context.Context, id int64) (*domain.Secret, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, domain.NotFoundError("secret")
}

func (m *MockSecretManager) Create(ctx context.Context, secret *domain.Secret) (*domain.Secret, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, secret)
	}
	return secret, nil
}

func (m *MockSecretManager) Update(ctx context.Context, secret *domain.Secret) (*domain.Secret, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, secret)
	}
	return secret, nil
}

func (m *MockSecretManager) Remove(ctx context.Context, id int64) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, id)
	}
	return nil
}

func (m *MockSecretManager) Validate(ctx context.Context, value string, projectID int64) (bool, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, value, projectID)
	}
	return false, nil
}
