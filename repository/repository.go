package repository

import (
	"context"
	"log/slog"

	"github.com/bygga/bygga/db"
	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/encryption"
	"gorm.io/gorm"
)

type ProjectFilter struct {
	Name       string // substring match
	WorkflowID *int64
	ListOptions
}

type ProjectRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Project, error)
	List(ctx context.Context, filter ProjectFilter) (*Page[*domain.Project], error)
	Create(ctx context.Context, project *domain.Project) (*domain.Project, error)
	Update(ctx context.Context, project *domain.Project) error
	Delete(ctx context.Context, id int64) error
}

type projectRepository struct {
	db     *gorm.DB
	mapper *ProjectMapper
}

func (r *projectRepository) List(ctx context.Context, filter ProjectFilter) (*Page[*domain.Project], error) {
	query := r.db.WithContext(ctx).Model(&db.ProjectModel{})
	if filter.Name != "" {
		query = query.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.WorkflowID != nil {
		query = query.Where("workflow_id = ?", *filter.WorkflowID)
	}

	var models []db.ProjectModel
	total, err := findPage(query, filter.ListOptions, &models)
	if err != nil {
		return nil, err
	}

	projects := make([]*domain.Project, len(models))
	for i, model := range models {
		projects[i] = r.mapper.ToDomain(&model)
	}
	return newPage(projects, filter.ListOptions, total), nil
}

func (r *projectRepository) FindByID(ctx context.Context, id int64) (*domain.Project, error) {
	var m db.ProjectModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		slog.Debug("Database operation failed",
			"layer", "repository",
			"operation", "find_project",
			"project_id", id,
			"error", err)
		return nil, err // Pass through as-is
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *projectRepository) Create(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	m, err := r.mapper.ToModel(project)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_project",
			"project_name", project.Name,
			"error", err)
		return nil, err // Pass through as-is
	}
	return r.mapper.ToDomain(m), nil
}

func (r *projectRepository) Update(ctx context.Context, project *domain.Project) error {
	m, err := r.mapper.ToModel(project)
	if err != nil {
		return err
	}

	// Select("*") writes cleared columns too, CreatedAt is never rewritten
	res := r.db.WithContext(ctx).Model(&db.ProjectModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("created_at").
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *projectRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&db.ProjectModel{}, id)
	if res.Error != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "delete_project",
			"project_id", id,
			"error", res.Error)
		return res.Error // Pass through as-is
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func NewProjectRepository(db *gorm.DB, encryptionSvc *encryption.EncryptionService) ProjectRepository {
	return &projectRepository{
		db:     db,
		mapper: NewProjectMapper(encryptionSvc),
	}
}

type WorkflowFilter struct {
	Name string
	ListOptions
}

type WorkflowRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Workflow, error)
	List(ctx context.Context, filter WorkflowFilter) (*Page[*domain.Workflow], error)
	Create(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error)
	Update(ctx context.Context, workflow *domain.Workflow) error
	Delete(ctx context.Context, id int64) error
}

type workflowRepository struct {
	db     *gorm.DB
	mapper *WorkflowMapper
}

func (r *workflowRepository) FindByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	var m db.WorkflowModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *workflowRepository) List(ctx context.Context, filter WorkflowFilter) (*Page[*domain.Workflow], error) {
	query := r.db.WithContext(ctx).Model(&db.WorkflowModel{})
	if filter.Name != "" {
		query = query.Where("name LIKE ?", "%"+filter.Name+"%")
	}

	var models []db.WorkflowModel
	total, err := findPage(query, filter.ListOptions, &models)
	if err != nil {
		return nil, err
	}

	workflows := make([]*domain.Workflow, len(models))
	for i, model := range models {
		workflows[i] = r.mapper.ToDomain(&model)
	}
	return newPage(workflows, filter.ListOptions, total), nil
}

func (r *workflowRepository) Create(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error) {
	m, err := r.mapper.ToModel(workflow)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_workflow",
			"workflow_name", workflow.Name,
			"error", err)
		return nil, err
	}
	return r.mapper.ToDomain(m), nil
}

func (r *workflowRepository) Update(ctx context.Context, workflow *domain.Workflow) error {
	m, err := r.mapper.ToModel(workflow)
	if err != nil {
		return err
	}

	omit := []string{"created_at"}
	if workflow.GitHubToken == "" {
		// An empty token on update keeps the stored one
		omit = append(omit, "github_token")
	}

	res := r.db.WithContext(ctx).Model(&db.WorkflowModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit(omit...).
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *workflowRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&db.WorkflowModel{}, id)
	if res.Error != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "delete_workflow",
			"workflow_id", id,
			"error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func NewWorkflowRepository(db *gorm.DB, encryptionSvc *encryption.EncryptionService) WorkflowRepository {
	return &workflowRepository{
		db:     db,
		mapper: NewWorkflowMapper(encryptionSvc),
	}
}

type TaskFilter struct {
	ProjectID *int64
	ListOptions
}

type TaskRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Task, error)
	List(ctx context.Context, filter TaskFilter) (*Page[*domain.Task], error)
	Create(ctx context.Context, task *domain.Task) error
}

type taskRepository struct {
	db     *gorm.DB
	mapper *TaskMapper
}

func (r *taskRepository) FindByID(ctx context.Context, id int64) (*domain.Task, error) {
	var m db.TaskModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *taskRepository) List(ctx context.Context, filter TaskFilter) (*Page[*domain.Task], error) {
	query := r.db.WithContext(ctx).Model(&db.TaskModel{})
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}

	var models []db.TaskModel
	total, err := findPage(query, filter.ListOptions, &models)
	if err != nil {
		return nil, err
	}

	tasks := make([]*domain.Task, len(models))
	for i, model := range models {
		tasks[i] = r.mapper.ToDomain(&model)
	}
	return newPage(tasks, filter.ListOptions, total), nil
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	m := r.mapper.ToModel(task)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	// Update the domain object with the id and timestamps that GORM populated
	*task = *r.mapper.ToDomain(m)
	return nil
}

func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{
		db:     db,
		mapper: &TaskMapper{},
	}
}
