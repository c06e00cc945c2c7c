// Package db provides database models and utilities for bygga.
package db

import (
	"time"
)

type BaseModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WorkflowModel struct {
	BaseModel
	Name         string  `gorm:"not null;check:name <> ''"`
	Description  *string `gorm:"type:text"`
	RepoOwner    string  `gorm:"not null;check:repo_owner <> ''"`
	RepoName     string  `gorm:"not null;check:repo_name <> ''"`
	WorkflowFile string  `gorm:"not null;check:workflow_file <> ''"`
	Branch       string  `gorm:"not null;check:branch <> ''"`
	GitHubToken  string  `gorm:"column:github_token;type:text;not null"` // Encrypted
}

func (WorkflowModel) TableName() string {
	return "workflows"
}

type ProjectModel struct {
	BaseModel
	Name          string  `gorm:"not null;check:name <> ''"`
	Description   string  `gorm:"type:text;not null"`
	RepoOwner     *string
	RepoName      *string
	Preview       *string
	WorkflowID    *int64  `gorm:"index"`
	DeployMethods *string `gorm:"type:text"` // JSON array of deploy methods
	Environment   *string `gorm:"type:text"` // JSON array of declared variables
	Pricing       *string `gorm:"type:text"` // JSON object of unit prices
	PaymentConfig *string `gorm:"type:text"` // Encrypted JSON gateway credentials

	Workflow *WorkflowModel `gorm:"foreignKey:WorkflowID;constraint:OnDelete:SET NULL"`
}

func (ProjectModel) TableName() string {
	return "projects"
}

type SecretModel struct {
	BaseModel
	Name         string  `gorm:"not null;check:name <> ''"`
	Value        *string `gorm:"type:varchar(191);uniqueIndex"`
	Description  *string `gorm:"type:text"`
	ProjectID    *int64  `gorm:"index"`
	CurrentCalls *int    `gorm:"default:0"`
	MaxCalls     *int    // NULL or 0 means unlimited
	ExpiresAt    *string `gorm:"type:varchar(32)"` // fixed-width UTC text, NULL, '' or '0' means never
	LastUsedAt   *string `gorm:"type:varchar(32)"`
	OrderID      *string `gorm:"type:varchar(191);uniqueIndex"` // gateway order id of a provisioned secret

	Project *ProjectModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

func (SecretModel) TableName() string {
	return "secrets"
}

type TaskModel struct {
	BaseModel
	ProjectID *int64 `gorm:"index"`
	RunID     int64  `gorm:"not null"`
	Status    string `gorm:"not null;check:status <> ''"` // status at creation, live status comes from CI

	Project *ProjectModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

func (TaskModel) TableName() string {
	return "tasks"
}

type MigrationModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null;unique"`
	AppliedAt time.Time
}

func (MigrationModel) TableName() string {
	return "schema_migrations"
}
