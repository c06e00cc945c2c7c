package handlers

import (
	"time"

	"github.com/bygga/bygga/domain"
)

// ProjectView is the JSON shape of a project. Repository coordinates, the workflow
// binding and gateway credentials are omitted for callers without the admin key.
type ProjectView struct {
	ID            int64                        `json:"id"`
	Name          string                       `json:"name"`
	Description   string                       `json:"description"`
	RepoOwner     *string                      `json:"repo_owner,omitempty"`
	RepoName      *string                      `json:"repo_name,omitempty"`
	Preview       *string                      `json:"preview"`
	WorkflowID    *int64                       `json:"workflow_id,omitempty"`
	DeployMethods []domain.DeployMethod        `json:"deploy_methods"`
	Environment   []domain.EnvironmentVariable `json:"environment"`
	Pricing       domain.Pricing               `json:"pricing"`
	PaymentConfig *domain.PaymentConfig        `json:"payment_config,omitempty"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}

func NewProjectView(p *domain.Project) ProjectView {
	view := ProjectView{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		RepoOwner:     p.RepoOwner,
		RepoName:      p.RepoName,
		Preview:       p.Preview,
		WorkflowID:    p.WorkflowID,
		DeployMethods: p.DeployMethods,
		Environment:   p.Environment,
		Pricing:       p.Pricing,
		PaymentConfig: p.PaymentConfig,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if view.DeployMethods == nil {
		view.DeployMethods = []domain.DeployMethod{}
	}
	if view.Environment == nil {
		view.Environment = []domain.EnvironmentVariable{}
	}
	return view
}

// projectView picks the admin or the public view
func projectView(p *domain.Project, admin bool) ProjectView {
	if admin {
		return NewProjectView(p)
	}
	return NewProjectView(p.Public())
}

// ProjectRequest is the body of project create and update calls
type ProjectRequest struct {
	Name          string                       `json:"name" validate:"required"`
	Description   string                       `json:"description"`
	RepoOwner     *string                      `json:"repo_owner"`
	RepoName      *string                      `json:"repo_name"`
	Preview       *string                      `json:"preview"`
	WorkflowID    *int64                       `json:"workflow_id" validate:"omitempty,gt=0"`
	DeployMethods []domain.DeployMethod        `json:"deploy_methods"`
	Environment   []domain.EnvironmentVariable `json:"environment"`
	Pricing       domain.Pricing               `json:"pricing"`
	PaymentConfig *domain.PaymentConfig        `json:"payment_config"`
}

func (r ProjectRequest) toDomain(id int64) *domain.Project {
	return &domain.Project{
		ID:            id,
		Name:          r.Name,
		Description:   r.Description,
		RepoOwner:     r.RepoOwner,
		RepoName:      r.RepoName,
		Preview:       r.Preview,
		WorkflowID:    r.WorkflowID,
		DeployMethods: r.DeployMethods,
		Environment:   r.Environment,
		Pricing:       r.Pricing,
		PaymentConfig: r.PaymentConfig,
	}
}

// WorkflowView never carries the plain GitHub token
type WorkflowView struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description"`
	RepoOwner    string    `json:"repo_owner"`
	RepoName     string    `json:"repo_name"`
	WorkflowFile string    `json:"workflow_file"`
	Branch       string    `json:"branch"`
	GitHubToken  string    `json:"github_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewWorkflowView(w *domain.Workflow) WorkflowView {
	redacted := w.Redacted()
	return WorkflowView{
		ID:           redacted.ID,
		Name:         redacted.Name,
		Description:  redacted.Description,
		RepoOwner:    redacted.RepoOwner,
		RepoName:     redacted.RepoName,
		WorkflowFile: redacted.WorkflowFile,
		Branch:       redacted.Branch,
		GitHubToken:  redacted.GitHubToken,
		CreatedAt:    redacted.CreatedAt,
		UpdatedAt:    redacted.UpdatedAt,
	}
}

type WorkflowRequest struct {
	Name         string  `json:"name" validate:"required"`
	Description  *string `json:"description"`
	RepoOwner    string  `json:"repo_owner" validate:"required"`
	RepoName     string  `json:"repo_name" validate:"required"`
	WorkflowFile string  `json:"workflow_file" validate:"required"`
	Branch       string  `json:"branch"`
	GitHubToken  string  `json:"github_token"`
}

func (r WorkflowRequest) toDomain(id int64) *domain.Workflow {
	return &domain.Workflow{
		ID:           id,
		Name:         r.Name,
		Description:  r.Description,
		RepoOwner:    r.RepoOwner,
		RepoName:     r.RepoName,
		WorkflowFile: r.WorkflowFile,
		Branch:       r.Branch,
		GitHubToken:  r.GitHubToken,
	}
}

type SecretView struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Value        string     `json:"value"`
	Description  *string    `json:"description"`
	ProjectID    *int64     `json:"project_id"`
	CurrentCalls int        `json:"current_calls"`
	MaxCalls     *int       `json:"max_calls"`
	ExpiresAt    *time.Time `json:"expires_at"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	OrderID      *string    `json:"order_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func NewSecretView(s *domain.Secret) SecretView {
	return SecretView{
		ID:           s.ID,
		Name:         s.Name,
		Value:        s.Value,
		Description:  s.Description,
		ProjectID:    s.ProjectID,
		CurrentCalls: s.CurrentCalls,
		MaxCalls:     s.MaxCalls,
		ExpiresAt:    s.ExpiresAt,
		LastUsedAt:   s.LastUsedAt,
		OrderID:      s.OrderID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

type SecretRequest struct {
	Name         string     `json:"name"`
	Value        string     `json:"value"`
	Description  *string    `json:"description"`
	ProjectID    *int64     `json:"project_id" validate:"omitempty,gt=0"`
	MaxCalls     *int       `json:"max_calls" validate:"omitempty,gte=0"`
	CurrentCalls int        `json:"current_calls" validate:"gte=0"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

func (r SecretRequest) toDomain(id int64) *domain.Secret {
	return &domain.Secret{
		ID:           id,
		Name:         r.Name,
		Value:        r.Value,
		Description:  r.Description,
		ProjectID:    r.ProjectID,
		MaxCalls:     r.MaxCalls,
		CurrentCalls: r.CurrentCalls,
		ExpiresAt:    r.ExpiresAt,
	}
}

// ValidateSecretRequest asks whether a secret is usable for a project
type ValidateSecretRequest struct {
	Secret    string `json:"secret" validate:"required"`
	ProjectID int64  `json:"project_id" validate:"required,gt=0"`
}

type ValidateSecretResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// TaskRequest starts a build of one deploy method of a project
type TaskRequest struct {
	ProjectID    int64             `json:"project_id" validate:"required,gt=0"`
	DeployMethod string            `json:"deploy_method" validate:"required"`
	Environment  map[string]string `json:"environment"`
	Secret       string            `json:"secret" validate:"required"`
}

// TaskView is the live state of a task. The project is always the public view.
type TaskView struct {
	ID         int64             `json:"id"`
	Project    ProjectView       `json:"project"`
	Status     string            `json:"status"`
	Conclusion *string           `json:"conclusion"`
	Artifacts  []domain.Artifact `json:"artifacts"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func NewTaskView(report *domain.TaskReport) TaskView {
	view := TaskView{
		ID:        report.Task.ID,
		Project:   NewProjectView(report.Project.Public()),
		Status:    report.Status.String(),
		Artifacts: report.Artifacts,
		CreatedAt: report.Task.CreatedAt,
		UpdatedAt: report.UpdatedAt,
	}
	if report.Conclusion != "" {
		conclusion := report.Conclusion
		view.Conclusion = &conclusion
	}
	if view.Artifacts == nil {
		view.Artifacts = []domain.Artifact{}
	}
	return view
}

// VerifyView reports what the workflow repository looks like from here
type VerifyView struct {
	Reachable     bool     `json:"reachable"`
	DefaultBranch string   `json:"default_branch"`
	Branch        string   `json:"branch"`
	Commit        string   `json:"commit"`
	Branches      []string `json:"branches"`
}
