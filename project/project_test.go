package project

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bygga/bygga/db"
	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/encryption"
	"github.com/bygga/bygga/git"
	"github.com/bygga/bygga/repository"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type services struct {
	projects   *ProjectService
	workflows  *WorkflowService
	secrets    *SecretService
	secretRepo repository.SecretRepository
}

func setupServices(t *testing.T) *services {
	t.Helper()
	database, err := db.InitDatabase(db.DBConfig{Path: ":memory:", LogLevel: logger.Silent})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAll(database))

	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	enc, err := encryption.NewEncryptionService(key)
	require.NoError(t, err)

	projectRepo := repository.NewProjectRepository(database, enc)
	workflowRepo := repository.NewWorkflowRepository(database, enc)
	secretRepo := repository.NewSecretRepository(database)

	return &services{
		projects:   NewProjectService(projectRepo, workflowRepo),
		workflows:  NewWorkflowService(workflowRepo, git.NewInspector("", time.Second)),
		secrets:    NewSecretService(secretRepo, projectRepo, 0),
		secretRepo: secretRepo,
	}
}

func createWorkflow(t *testing.T, s *services) *domain.Workflow {
	t.Helper()
	workflow, err := s.workflows.Create(context.Background(), &domain.Workflow{
		Name:         "builder",
		RepoOwner:    "acme",
		RepoName:     "builds",
		WorkflowFile: "build.yml",
		GitHubToken:  "ghp_secret",
	})
	require.NoError(t, err)
	return workflow
}

func TestProjectService_Create(t *testing.T) {
	s := setupServices(t)
	workflow := createWorkflow(t, s)

	project, err := s.projects.Create(context.Background(), &domain.Project{
		Name:       "  Static Site  ",
		WorkflowID: &workflow.ID,
		DeployMethods: []domain.DeployMethod{
			{Type: "static", Commands: []string{"npm ci", "npm run build"}},
			{Type: "docs", Commands: []string{"make docs"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Static Site", project.Name)
	assert.NotZero(t, project.ID)

	got, err := s.projects.Get(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Len(t, got.DeployMethods, 2)
}

func TestProjectService_CreateValidation(t *testing.T) {
	s := setupServices(t)
	missingWorkflow := int64(42)
	negative := -1.0

	tests := []struct {
		name    string
		project *domain.Project
		wantMsg string
	}{
		{
			name:    "empty name",
			project: &domain.Project{Name: "   "},
			wantMsg: "name is required",
		},
		{
			name: "duplicate deploy method type",
			project: &domain.Project{Name: "dup", DeployMethods: []domain.DeployMethod{
				{Type: "static"}, {Type: "static"},
			}},
			wantMsg: "duplicate deploy method type: static",
		},
		{
			name:    "unknown workflow",
			project: &domain.Project{Name: "orphan", WorkflowID: &missingWorkflow},
			wantMsg: "linked workflow does not exist",
		},
		{
			name:    "negative price",
			project: &domain.Project{Name: "cheap", Pricing: domain.Pricing{Monthly: &negative}},
			wantMsg: "prices cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.projects.Create(context.Background(), tt.project)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
			assert.Equal(t, tt.wantMsg, domain.MessageOf(err))
		})
	}
}

func TestProjectService_UpdateKeepsPaymentConfig(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	project, err := s.projects.Create(ctx, &domain.Project{
		Name: "paid",
		PaymentConfig: &domain.PaymentConfig{
			Cryptomus: &domain.CryptomusConfig{APIKey: "key", MerchantID: "merchant"},
		},
	})
	require.NoError(t, err)

	updated, err := s.projects.Update(ctx, &domain.Project{ID: project.ID, Name: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	require.NotNil(t, updated.PaymentConfig)
	assert.Equal(t, "key", updated.PaymentConfig.Cryptomus.APIKey)
	assert.True(t, project.CreatedAt.Equal(updated.CreatedAt))
}

func TestProjectService_NotFound(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	_, err := s.projects.Get(ctx, 999)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = s.projects.Update(ctx, &domain.Project{ID: 999, Name: "ghost"})
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	err = s.projects.Remove(ctx, 999)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestProjectService_ListAndRemove(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta", "alphabet"} {
		_, err := s.projects.Create(ctx, &domain.Project{Name: name})
		require.NoError(t, err)
	}

	page, err := s.projects.List(ctx, repository.ProjectFilter{Name: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	require.NoError(t, s.projects.Remove(ctx, page.List[0].ID))

	page, err = s.projects.List(ctx, repository.ProjectFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
}

func TestWorkflowService_Validation(t *testing.T) {
	s := setupServices(t)

	tests := []struct {
		name     string
		workflow domain.Workflow
		wantMsg  string
	}{
		{"no name", domain.Workflow{RepoOwner: "a", RepoName: "b", WorkflowFile: "c.yml"}, "name is required"},
		{"no owner", domain.Workflow{Name: "w", RepoName: "b", WorkflowFile: "c.yml"}, "repo_owner is required"},
		{"no repo", domain.Workflow{Name: "w", RepoOwner: "a", WorkflowFile: "c.yml"}, "repo_name is required"},
		{"no file", domain.Workflow{Name: "w", RepoOwner: "a", RepoName: "b"}, "workflow_file is required"},
		{"not yaml", domain.Workflow{Name: "w", RepoOwner: "a", RepoName: "b", WorkflowFile: "build.sh"}, "workflow_file must be a .yml or .yaml file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := tt.workflow
			_, err := s.workflows.Create(context.Background(), &workflow)
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, domain.MessageOf(err))
		})
	}
}

func TestWorkflowService_CreateDefaultsBranch(t *testing.T) {
	s := setupServices(t)
	workflow := createWorkflow(t, s)
	assert.Equal(t, domain.DefaultBranch, workflow.Branch)
	assert.Equal(t, "ghp_secret", workflow.GitHubToken)
}

func TestWorkflowService_UpdateKeepsToken(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	workflow := createWorkflow(t, s)

	updated, err := s.workflows.Update(ctx, &domain.Workflow{
		ID:           workflow.ID,
		Name:         "builder v2",
		RepoOwner:    "acme",
		RepoName:     "builds",
		WorkflowFile: "build.yaml",
		Branch:       "release",
	})
	require.NoError(t, err)
	assert.Equal(t, "builder v2", updated.Name)
	assert.Equal(t, "release", updated.Branch)
	assert.Equal(t, "ghp_secret", updated.GitHubToken)
}

func TestWorkflowService_RemoveUnbindsProjects(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	workflow := createWorkflow(t, s)

	project, err := s.projects.Create(ctx, &domain.Project{Name: "bound", WorkflowID: &workflow.ID})
	require.NoError(t, err)

	require.NoError(t, s.workflows.Remove(ctx, workflow.ID))

	got, err := s.projects.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Nil(t, got.WorkflowID)
}

func TestWorkflowService_VerifyMissingWorkflow(t *testing.T) {
	s := setupServices(t)
	_, err := s.workflows.Verify(context.Background(), 123)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestSecretService_CreateDefaults(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	fixed := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	s.secrets.now = func() time.Time { return fixed }

	project, err := s.projects.Create(ctx, &domain.Project{Name: "p"})
	require.NoError(t, err)

	secret, err := s.secrets.Create(ctx, &domain.Secret{ProjectID: &project.ID, CurrentCalls: 7})
	require.NoError(t, err)

	assert.Equal(t, "secret-1742040000000", secret.Name)
	assert.Regexp(t, `^[A-Z0-9]{5}(-[A-Z0-9]{5}){4}$`, secret.Value)
	require.NotNil(t, secret.MaxCalls)
	assert.Equal(t, 0, *secret.MaxCalls)
	assert.Equal(t, 0, secret.CurrentCalls)

	valid, err := s.secrets.Validate(ctx, secret.Value, project.ID)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestSecretService_CreateValidation(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	missing := int64(404)
	negative := -3

	_, err := s.secrets.Create(ctx, &domain.Secret{ProjectID: &missing})
	assert.Equal(t, "project does not exist", domain.MessageOf(err))

	_, err = s.secrets.Create(ctx, &domain.Secret{MaxCalls: &negative})
	assert.Equal(t, "max_calls cannot be negative", domain.MessageOf(err))
}

func TestSecretService_DuplicateValue(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	_, err := s.secrets.Create(ctx, &domain.Secret{Value: "SAME-VALUE"})
	require.NoError(t, err)

	_, err = s.secrets.Create(ctx, &domain.Secret{Value: "SAME-VALUE"})
	require.Error(t, err)
	assert.Equal(t, "this entry already exists", FormatErrorForUser(err))
}

func TestSecretService_UpdateRegeneratesEmptyValue(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	secret, err := s.secrets.Create(ctx, &domain.Secret{Name: "fixed", Value: "OLD-VALUE"})
	require.NoError(t, err)

	secret.Value = ""
	secret.Name = ""
	updated, err := s.secrets.Update(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, "fixed", updated.Name)
	assert.NotEqual(t, "OLD-VALUE", updated.Value)
	assert.NotEmpty(t, updated.Value)
}

func TestSecretService_ValidateRequiresInput(t *testing.T) {
	s := setupServices(t)

	_, err := s.secrets.Validate(context.Background(), "", 1)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = s.secrets.Validate(context.Background(), "X", 0)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	valid, err := s.secrets.Validate(context.Background(), "UNKNOWN", 1)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestFormatErrorForUser(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"domain error", domain.ValidationError("name is required"), "name is required"},
		{"record not found", gorm.ErrRecordNotFound, "record not found"},
		{"duplicated key", gorm.ErrDuplicatedKey, "this entry already exists"},
		{"unique on value", errors.New("UNIQUE constraint failed: secrets.value"), "a secret with this value already exists"},
		{"unique constraint", errors.New("UNIQUE constraint failed: secrets.order_id"), "this entry already exists"},
		{"connection", errors.New("dial tcp: connection refused"), "database connection failed"},
		{"timeout", errors.New("i/o timeout"), "operation timed out"},
		{"git auth required", transport.ErrAuthenticationRequired, "git authentication required - please configure a GitHub token"},
		{"git auth failed", transport.ErrAuthorizationFailed, "git authentication failed - please check the GitHub token"},
		{"git repo missing", transport.ErrRepositoryNotFound, "git repository not found - please check the owner, name and token permissions"},
		{"branch missing", git.ErrBranchNotFound, "branch not found in repository"},
		{"unknown", errors.New("boom"), "an unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatErrorForUser(tt.err))
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, 400, ErrorCode(domain.ValidationError("x")))
	assert.Equal(t, 404, ErrorCode(gorm.ErrRecordNotFound))
	assert.Equal(t, 400, ErrorCode(gorm.ErrDuplicatedKey))
	assert.Equal(t, 500, ErrorCode(errors.New("boom")))
}
