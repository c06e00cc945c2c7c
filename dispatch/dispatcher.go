// Package dispatch triggers CI runs on behalf of secret holders and ties each run to a task.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bygga/bygga/ci"
	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/encryption"
	"github.com/bygga/bygga/metrics"
	"github.com/bygga/bygga/repository"
	"gorm.io/gorm"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollAttempts = 5

	// pollPageSize is how many recent runs are scanned per correlation attempt
	pollPageSize = 10
)

// Request is a dispatch request as received from a caller
type Request struct {
	ProjectID    int64             `json:"project_id"`
	DeployMethod string            `json:"deploy_method"`
	Environment  map[string]string `json:"environment,omitempty"`
	Secret       string            `json:"secret"`
}

// Result identifies the task and the run it was correlated with
type Result struct {
	TaskID int64 `json:"task_id"`
	RunID  int64 `json:"run_id"`
}

type Config struct {
	PollInterval time.Duration
	PollAttempts int
}

type Dispatcher struct {
	projects  repository.ProjectRepository
	workflows repository.WorkflowRepository
	secrets   repository.SecretRepository
	tasks     repository.TaskRepository
	ci        ci.Client
	metrics   *metrics.Metrics

	pollInterval time.Duration
	pollAttempts int
	// wait suspends between correlation attempts
	wait func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(
	projects repository.ProjectRepository,
	workflows repository.WorkflowRepository,
	secrets repository.SecretRepository,
	tasks repository.TaskRepository,
	ciClient ci.Client,
	m *metrics.Metrics,
	cfg Config,
) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	return &Dispatcher{
		projects:     projects,
		workflows:    workflows,
		secrets:      secrets,
		tasks:        tasks,
		ci:           ciClient,
		metrics:      m,
		pollInterval: cfg.PollInterval,
		pollAttempts: cfg.PollAttempts,
		wait:         sleep,
	}
}

// Dispatch validates the caller's secret, triggers the project's workflow and records a task
// for the run it started. A call is charged to the secret only when a task is recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	result, outcome, err := d.dispatch(ctx, req)
	d.metrics.RecordDispatch(outcome)
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (*Result, string, error) {
	if err := validateRequest(req); err != nil {
		return nil, metrics.OutcomeRejected, err
	}

	_, valid, err := d.secrets.Validate(ctx, req.Secret, req.ProjectID)
	if err != nil {
		return nil, metrics.OutcomePersistenceError, domain.PersistenceError("failed to validate secret", err)
	}
	if !valid {
		return nil, metrics.OutcomeUnauthorized, domain.AuthorizationError("invalid, expired or exhausted secret")
	}

	project, workflow, method, err := d.resolve(ctx, req)
	if err != nil {
		return nil, metrics.OutcomeRejected, err
	}

	envVars, encrypted, err := BuildEnvironment(req.Environment, workflow.GitHubToken)
	if err != nil {
		return nil, metrics.OutcomeRejected, fmt.Errorf("failed to prepare environment: %w", err)
	}

	ref := workflowRef(workflow)

	// Once the remote side is touched the caller going away must not abort the sequence
	ctx = context.WithoutCancel(ctx)

	highWaterMark, err := ci.LatestRunID(ctx, d.ci, ref)
	if err != nil {
		return nil, metrics.OutcomeUpstreamError, domain.UpstreamError("failed to query workflow runs", err)
	}

	// Reserve right before the trigger so concurrent callers cannot share the last call
	reserved, err := d.secrets.Reserve(ctx, req.Secret, req.ProjectID)
	if errors.Is(err, repository.ErrSecretUnavailable) {
		return nil, metrics.OutcomeUnauthorized, domain.AuthorizationError("invalid, expired or exhausted secret")
	}
	if err != nil {
		return nil, metrics.OutcomePersistenceError, domain.PersistenceError("failed to reserve secret", err)
	}

	inputs := map[string]any{
		"runs_on":            method.RunnerLabel(),
		"username":           project.RepoOwnerStr(),
		"repo":               project.RepoNameStr(),
		"branch":             method.SourceBranch(),
		"build_command":      strings.Join(method.Commands, ";"),
		"artifact_paths":     strings.Join(method.Outputs, ","),
		"compress_artifacts": boolString(method.Compress),
		"env_vars":           envVars,
		"encrypted":          boolString(encrypted),
	}

	if err := d.ci.Dispatch(ctx, ref, inputs); err != nil {
		d.release(ctx, reserved.ID)
		return nil, metrics.OutcomeUpstreamError, domain.UpstreamError("failed to trigger workflow", err)
	}

	runID, attempts, err := d.correlate(ctx, ref, highWaterMark)
	d.metrics.ObserveCorrelationAttempts(attempts)
	if err != nil {
		d.release(ctx, reserved.ID)
		slog.Warn("Triggered workflow run could not be identified",
			"layer", "service",
			"operation", "dispatch",
			"project_id", project.ID,
			"workflow_id", workflow.ID,
			"high_water_mark", highWaterMark,
			"attempts", attempts,
			"error", err)
		return nil, metrics.OutcomeCorrelationTimeout, domain.CorrelationTimeoutError(
			"workflow was triggered but its run could not be identified, check the workflow runs on GitHub")
	}

	task := domain.NewTask(project.ID, runID)
	if err := d.tasks.Create(ctx, &task); err != nil {
		d.release(ctx, reserved.ID)
		// The run exists remotely without a local task
		slog.Error("Failed to record task for triggered run",
			"layer", "service",
			"operation", "dispatch",
			"project_id", project.ID,
			"workflow_id", workflow.ID,
			"run_id", runID,
			"secret_id", reserved.ID,
			"error", err)
		return nil, metrics.OutcomePersistenceError, domain.PersistenceError(
			fmt.Sprintf("workflow run %d was started but the task could not be recorded", runID), err)
	}

	slog.Info("Task dispatched",
		"project_id", project.ID,
		"task_id", task.ID,
		"run_id", runID,
		"secret_id", reserved.ID,
		"deploy_method", method.Type)

	return &Result{TaskID: task.ID, RunID: runID}, metrics.OutcomeSuccess, nil
}

// resolve loads the project, its workflow and the requested deploy method
func (d *Dispatcher) resolve(ctx context.Context, req Request) (*domain.Project, *domain.Workflow, domain.DeployMethod, error) {
	project, err := d.projects.FindByID(ctx, req.ProjectID)
	if err != nil {
		return nil, nil, domain.DeployMethod{}, lookupError("project", err)
	}

	if project.WorkflowID == nil {
		return nil, nil, domain.DeployMethod{}, domain.NotFoundError("workflow of the project")
	}
	workflow, err := d.workflows.FindByID(ctx, *project.WorkflowID)
	if err != nil {
		return nil, nil, domain.DeployMethod{}, lookupError("workflow of the project", err)
	}

	method, ok := project.DeployMethod(req.DeployMethod)
	if !ok {
		return nil, nil, domain.DeployMethod{}, domain.ValidationError("deploy method %q does not exist", req.DeployMethod)
	}

	return project, workflow, method, nil
}

// correlate polls the run list until a run newer than highWaterMark shows up.
// It returns the run id and the number of attempts made.
func (d *Dispatcher) correlate(ctx context.Context, ref ci.WorkflowRef, highWaterMark int64) (int64, int, error) {
	for attempt := 1; attempt <= d.pollAttempts; attempt++ {
		if err := d.wait(ctx, d.pollInterval); err != nil {
			return 0, attempt - 1, err
		}

		runs, err := d.ci.ListRuns(ctx, ref, pollPageSize)
		if err != nil {
			slog.Warn("Failed to list workflow runs while correlating",
				"workflow", ref.String(),
				"attempt", attempt,
				"error", err)
			continue
		}

		for _, run := range runs {
			if run.ID > highWaterMark {
				slog.Debug("Correlated workflow run",
					"workflow", ref.String(),
					"run_id", run.ID,
					"attempt", attempt)
				return run.ID, attempt, nil
			}
		}
	}
	return 0, d.pollAttempts, fmt.Errorf("no run newer than %d after %d attempts", highWaterMark, d.pollAttempts)
}

func (d *Dispatcher) release(ctx context.Context, secretID int64) {
	if err := d.secrets.Release(ctx, secretID); err != nil {
		slog.Error("Failed to release secret reservation",
			"layer", "service",
			"operation", "release_secret",
			"secret_id", secretID,
			"error", err)
	}
}

func validateRequest(req Request) error {
	switch {
	case req.ProjectID <= 0:
		return domain.ValidationError("project_id is required")
	case req.Secret == "":
		return domain.ValidationError("secret is required")
	case req.DeployMethod == "":
		return domain.ValidationError("deploy_method is required")
	}
	return nil
}

// BuildEnvironment renders caller-supplied variables for the env_vars input.
// With a token the JSON form is sealed with it, otherwise variables are joined as k=v,k=v.
// The second result is set whenever the workflow has a token, even with no variables.
func BuildEnvironment(env map[string]string, token string) (string, bool, error) {
	encrypted := token != ""
	if encrypted && len(env) > 0 {
		data, err := json.Marshal(env)
		if err != nil {
			return "", false, err
		}
		sealed, err := encryption.Seal(string(data), token)
		if err != nil {
			return "", false, err
		}
		return sealed, true, nil
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return strings.Join(pairs, ","), encrypted, nil
}

func workflowRef(w *domain.Workflow) ci.WorkflowRef {
	return ci.WorkflowRef{
		Owner:        w.RepoOwner,
		Repo:         w.RepoName,
		WorkflowFile: w.WorkflowFile,
		Branch:       w.Branch,
		Token:        w.GitHubToken,
	}
}

func lookupError(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError(what)
	}
	return domain.PersistenceError(fmt.Sprintf("failed to load %s", what), err)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
