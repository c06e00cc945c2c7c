// Package app wires configuration, storage and services into a runnable bygga instance.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bygga/bygga/billing"
	"github.com/bygga/bygga/ci"
	"github.com/bygga/bygga/config"
	"github.com/bygga/bygga/db"
	"github.com/bygga/bygga/dispatch"
	"github.com/bygga/bygga/encryption"
	"github.com/bygga/bygga/git"
	"github.com/bygga/bygga/metrics"
	"github.com/bygga/bygga/payment"
	"github.com/bygga/bygga/project"
	"github.com/bygga/bygga/repository"
	"github.com/bygga/bygga/web/handlers"
	"github.com/bygga/bygga/web/middleware"
	"github.com/bygga/bygga/web/routes"
	"gorm.io/gorm"
)

// Version is set at build time via -ldflags
var Version = "dev"

// App holds every long-lived component of a running instance
type App struct {
	Config *config.Config
	DB     *gorm.DB

	Projects   *project.ProjectService
	Workflows  *project.WorkflowService
	Secrets    *project.SecretService
	Dispatcher *dispatch.Dispatcher
	Billing    *billing.Service
	Metrics    *metrics.Metrics

	limiter middleware.RateLimiter
}

// New opens the configured database and builds all services on top of it
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	dsn := cfg.DatabasePath
	if cfg.DatabaseDriver == config.DriverMySQL {
		dsn = cfg.DatabaseDSN
	}

	database, err := db.InitDB(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a, err := NewWithDB(ctx, cfg, database)
	if err != nil {
		_ = db.Close(database)
		return nil, err
	}
	return a, nil
}

// NewWithDB builds the services on an already migrated database
func NewWithDB(ctx context.Context, cfg *config.Config, database *gorm.DB) (*App, error) {
	encryptionSvc, err := encryption.NewEncryptionService(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	projectRepo := repository.NewProjectRepository(database, encryptionSvc)
	workflowRepo := repository.NewWorkflowRepository(database, encryptionSvc)
	secretRepo := repository.NewSecretRepository(database)
	taskRepo := repository.NewTaskRepository(database)

	githubClient, err := ci.NewGitHubClient(cfg.GitHubAPIURL, cfg.GitHubTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GitHub client: %w", err)
	}
	gateway := payment.NewClient(cfg.PaymentAPIURL, cfg.PaymentTimeout)
	inspector := git.NewInspector("", cfg.GitTimeout)
	m := metrics.New()

	a := &App{
		Config:    cfg,
		DB:        database,
		Projects:  project.NewProjectService(projectRepo, workflowRepo),
		Workflows: project.NewWorkflowService(workflowRepo, inspector),
		Secrets:   project.NewSecretService(secretRepo, projectRepo, encryption.DefaultSecretLength),
		Dispatcher: dispatch.NewDispatcher(projectRepo, workflowRepo, secretRepo, taskRepo, githubClient, m, dispatch.Config{
			PollInterval: cfg.PollInterval,
			PollAttempts: cfg.PollAttempts,
		}),
		Billing: billing.NewService(projectRepo, secretRepo, gateway, m, billing.Config{
			AppURL:       cfg.AppURL,
			Currency:     cfg.PaymentCurrency,
			Lifetime:     cfg.PaymentLifetime,
			SecretLength: encryption.DefaultSecretLength,
		}),
		Metrics: m,
	}

	a.limiter, err = newRateLimiter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// newRateLimiter prefers redis when an address is configured so limits hold across replicas
func newRateLimiter(ctx context.Context, cfg *config.Config) (middleware.RateLimiter, error) {
	if cfg.RateLimitRequests <= 0 {
		return nil, nil
	}
	if cfg.RedisAddr == "" {
		return middleware.NewMemoryRateLimiter(), nil
	}

	limiter, err := middleware.NewRedisRateLimiter(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	slog.Info("Using redis rate limiter", "addr", cfg.RedisAddr)
	return limiter, nil
}

// Handler returns the complete HTTP API
func (a *App) Handler() http.Handler {
	h := handlers.New(a.Projects, a.Workflows, a.Secrets, a.Dispatcher, a.Billing, a.Config.APIKey, Version)
	return routes.NewRouter(h, routes.Options{
		APIKey:         a.Config.APIKey,
		Limiter:        a.limiter,
		RateLimit:      a.Config.RateLimitRequests,
		RateLimitEvery: a.Config.RateLimitWindow,
		Metrics:        a.Metrics.Handler(),
	})
}

// Close releases the rate limiter and the database
func (a *App) Close() error {
	if a.limiter != nil {
		a.limiter.Close()
	}
	return db.Close(a.DB)
}
