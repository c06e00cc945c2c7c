// Package repository provides the data access layer for projects, workflows, secrets and tasks.
package repository

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bygga/bygga/db"
	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/encryption"
)

type ProjectMapper struct {
	encryption *encryption.EncryptionService
}

func NewProjectMapper(encryptionSvc *encryption.EncryptionService) *ProjectMapper {
	return &ProjectMapper{encryption: encryptionSvc}
}

func (m *ProjectMapper) ToDomain(p *db.ProjectModel) *domain.Project {
	project := &domain.Project{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		RepoOwner:     p.RepoOwner,
		RepoName:      p.RepoName,
		Preview:       p.Preview,
		WorkflowID:    p.WorkflowID,
		DeployMethods: []domain.DeployMethod{},
		Environment:   []domain.EnvironmentVariable{},
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}

	// Malformed columns degrade to empty values, the project stays usable
	decodeColumn(p.ID, "deploy_methods", p.DeployMethods, &project.DeployMethods)
	decodeColumn(p.ID, "environment", p.Environment, &project.Environment)
	decodeColumn(p.ID, "pricing", p.Pricing, &project.Pricing)

	if p.PaymentConfig != nil && *p.PaymentConfig != "" {
		var cfg domain.PaymentConfig
		if looksEncrypted(*p.PaymentConfig) && m.encryption != nil {
			if _, err := m.encryption.DecryptJSON(*p.PaymentConfig, &cfg); err != nil {
				// This could happen if encryption key changed
				slog.Error("Failed to decrypt payment configuration",
					"project_id", p.ID,
					"project_name", p.Name,
					"error", err)
			} else {
				project.PaymentConfig = &cfg
			}
		} else if err := json.Unmarshal([]byte(*p.PaymentConfig), &cfg); err == nil {
			// Rows written before at-rest encryption hold plain JSON
			project.PaymentConfig = &cfg
		}
	}

	return project
}

func (m *ProjectMapper) ToModel(p *domain.Project) (*db.ProjectModel, error) {
	model := &db.ProjectModel{
		BaseModel: db.BaseModel{
			ID:        p.ID,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		},
		Name:        p.Name,
		Description: p.Description,
		RepoOwner:   p.RepoOwner,
		RepoName:    p.RepoName,
		Preview:     p.Preview,
		WorkflowID:  p.WorkflowID,
	}

	var err error
	if model.DeployMethods, err = encodeColumn(p.DeployMethods); err != nil {
		return nil, fmt.Errorf("failed to encode deploy methods: %w", err)
	}
	if model.Environment, err = encodeColumn(p.Environment); err != nil {
		return nil, fmt.Errorf("failed to encode environment: %w", err)
	}
	if model.Pricing, err = encodeColumn(p.Pricing); err != nil {
		return nil, fmt.Errorf("failed to encode pricing: %w", err)
	}

	if p.PaymentConfig != nil {
		if m.encryption == nil {
			return nil, fmt.Errorf("encryption service is required to store payment configuration")
		}
		token, err := m.encryption.EncryptJSON(p.PaymentConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt payment configuration: %w", err)
		}
		model.PaymentConfig = &token
	}

	return model, nil
}

type WorkflowMapper struct {
	encryption *encryption.EncryptionService
}

func NewWorkflowMapper(encryptionSvc *encryption.EncryptionService) *WorkflowMapper {
	return &WorkflowMapper{encryption: encryptionSvc}
}

func (m *WorkflowMapper) ToDomain(w *db.WorkflowModel) *domain.Workflow {
	token := w.GitHubToken
	if looksEncrypted(token) && m.encryption != nil {
		decrypted, err := m.encryption.Decrypt(token)
		if err != nil {
			slog.Error("Failed to decrypt GitHub token",
				"workflow_id", w.ID,
				"workflow_name", w.Name,
				"error", err)
			token = ""
		} else {
			token = decrypted
		}
	}

	return &domain.Workflow{
		ID:           w.ID,
		Name:         w.Name,
		Description:  w.Description,
		RepoOwner:    w.RepoOwner,
		RepoName:     w.RepoName,
		WorkflowFile: w.WorkflowFile,
		Branch:       w.Branch,
		GitHubToken:  token,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

func (m *WorkflowMapper) ToModel(w *domain.Workflow) (*db.WorkflowModel, error) {
	model := &db.WorkflowModel{
		BaseModel: db.BaseModel{
			ID:        w.ID,
			CreatedAt: w.CreatedAt,
			UpdatedAt: w.UpdatedAt,
		},
		Name:         w.Name,
		Description:  w.Description,
		RepoOwner:    w.RepoOwner,
		RepoName:     w.RepoName,
		WorkflowFile: w.WorkflowFile,
		Branch:       w.Branch,
	}

	if w.GitHubToken != "" {
		if m.encryption == nil {
			return nil, fmt.Errorf("encryption service is required to store GitHub tokens")
		}
		token, err := m.encryption.Encrypt(w.GitHubToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt GitHub token: %w", err)
		}
		model.GitHubToken = token
	}

	return model, nil
}

type SecretMapper struct{}

func (m *SecretMapper) ToDomain(s *db.SecretModel) *domain.Secret {
	secret := &domain.Secret{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		ProjectID:   s.ProjectID,
		MaxCalls:    s.MaxCalls,
		OrderID:     s.OrderID,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.Value != nil {
		secret.Value = *s.Value
	}
	if s.CurrentCalls != nil {
		secret.CurrentCalls = *s.CurrentCalls
	}
	secret.ExpiresAt = parseColumnTime(s.ID, "expires_at", s.ExpiresAt)
	secret.LastUsedAt = parseColumnTime(s.ID, "last_used_at", s.LastUsedAt)
	return secret
}

func (m *SecretMapper) ToModel(s *domain.Secret) *db.SecretModel {
	currentCalls := s.CurrentCalls
	model := &db.SecretModel{
		BaseModel: db.BaseModel{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		},
		Name:         s.Name,
		Description:  s.Description,
		ProjectID:    s.ProjectID,
		CurrentCalls: &currentCalls,
		MaxCalls:     s.MaxCalls,
		OrderID:      s.OrderID,
	}
	if s.Value != "" {
		value := s.Value
		model.Value = &value
	}
	if s.ExpiresAt != nil {
		expires := domain.FormatTimestamp(*s.ExpiresAt)
		model.ExpiresAt = &expires
	}
	if s.LastUsedAt != nil {
		lastUsed := domain.FormatTimestamp(*s.LastUsedAt)
		model.LastUsedAt = &lastUsed
	}
	return model
}

type TaskMapper struct{}

func (m *TaskMapper) ToDomain(t *db.TaskModel) *domain.Task {
	status, err := domain.ParseTaskStatus(t.Status)
	if err != nil {
		status = domain.TaskStatusUnknown
	}

	task := &domain.Task{
		ID:        t.ID,
		RunID:     t.RunID,
		Status:    status,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.ProjectID != nil {
		task.ProjectID = *t.ProjectID
	}
	return task
}

func (m *TaskMapper) ToModel(t *domain.Task) *db.TaskModel {
	projectID := t.ProjectID
	return &db.TaskModel{
		BaseModel: db.BaseModel{
			ID:        t.ID,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		},
		ProjectID: &projectID,
		RunID:     t.RunID,
		Status:    t.Status.String(),
	}
}

// Helper functions
func decodeColumn(id int64, column string, raw *string, dest any) {
	if raw == nil || *raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(*raw), dest); err != nil {
		slog.Warn("Ignoring malformed column",
			"layer", "repository",
			"id", id,
			"column", column,
			"error", err)
	}
}

func encodeColumn(v any) (*string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func parseColumnTime(id int64, column string, raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	t, err := domain.ParseTimestamp(*raw)
	if err != nil {
		slog.Warn("Ignoring malformed timestamp",
			"layer", "repository",
			"secret_id", id,
			"column", column,
			"error", err)
		return nil
	}
	return t
}

// looksEncrypted reports whether s is a stored fernet token rather than legacy plaintext.
// Stored values wrap the base64url token in standard base64, so the version byte sits two layers down.
func looksEncrypted(s string) bool {
	outer, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(outer) == 0 {
		return false
	}
	token, err := base64.URLEncoding.DecodeString(string(outer))
	return err == nil && len(token) > 0 && token[0] == 0x80
}
