package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bygga/bygga/ci"
	"github.com/bygga/bygga/db"
	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/encryption"
	"github.com/bygga/bygga/metrics"
	"github.com/bygga/bygga/repository"
	"github.com/bygga/bygga/testing/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

type fixture struct {
	dispatcher *Dispatcher
	ci         *fakeCI
	secrets    repository.SecretRepository
	tasks      repository.TaskRepository
	project    *domain.Project
	workflow   *domain.Workflow
	metrics    *metrics.Metrics
}

// fakeCI simulates a workflow whose newest run is highWaterMark until it is dispatched
type fakeCI struct {
	mocks.MockCIClient

	mu            sync.Mutex
	highWaterMark int64
	dispatched    []map[string]any
	refs          []ci.WorkflowRef
	startRun      bool
	dispatchErr   error
}

func newFakeCI(highWaterMark int64) *fakeCI {
	f := &fakeCI{highWaterMark: highWaterMark, startRun: true}
	f.ListRunsFunc = func(ctx context.Context, ref ci.WorkflowRef, perPage int) ([]ci.Run, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		runs := []ci.Run{}
		if f.startRun {
			for i := len(f.dispatched); i > 0; i-- {
				runs = append(runs, ci.Run{ID: f.highWaterMark + int64(i), Status: "queued"})
			}
		}
		if f.highWaterMark > 0 {
			runs = append(runs, ci.Run{ID: f.highWaterMark, Status: "completed"})
		}
		if len(runs) > perPage {
			runs = runs[:perPage]
		}
		return runs, nil
	}
	f.DispatchFunc = func(ctx context.Context, ref ci.WorkflowRef, inputs map[string]any) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.dispatchErr != nil {
			return f.dispatchErr
		}
		f.dispatched = append(f.dispatched, inputs)
		f.refs = append(f.refs, ref)
		return nil
	}
	return f
}

func (f *fakeCI) dispatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched)
}

type failingTasks struct {
	repository.TaskRepository
}

func (failingTasks) Create(ctx context.Context, task *domain.Task) error {
	return errors.New("disk full")
}

func setupFixture(t *testing.T, token string) *fixture {
	t.Helper()

	database, err := db.InitDatabase(db.DBConfig{Path: ":memory:", LogLevel: logger.Silent})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAll(database))

	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	enc, err := encryption.NewEncryptionService(key)
	require.NoError(t, err)

	projects := repository.NewProjectRepository(database, enc)
	workflows := repository.NewWorkflowRepository(database, enc)
	secrets := repository.NewSecretRepository(database)
	tasks := repository.NewTaskRepository(database)
	ctx := context.Background()

	workflow, err := workflows.Create(ctx, &domain.Workflow{
		Name:         "builder",
		RepoOwner:    "acme",
		RepoName:     "builder",
		WorkflowFile: "build.yml",
		Branch:       "main",
		GitHubToken:  token,
	})
	require.NoError(t, err)

	owner, repo := "customer", "site"
	project, err := projects.Create(ctx, &domain.Project{
		Name:        "Static site",
		Description: "d",
		RepoOwner:   &owner,
		RepoName:    &repo,
		WorkflowID:  &workflow.ID,
		DeployMethods: []domain.DeployMethod{
			{Type: "static", Commands: []string{"npm ci", "npm run build"}, Outputs: []string{"dist", "public"}, Compress: true},
			{Type: "docker", RunsOn: "self-hosted", Branch: "release"},
		},
	})
	require.NoError(t, err)

	fake := newFakeCI(100)
	m := metrics.New()
	d := NewDispatcher(projects, workflows, secrets, tasks, fake, m, Config{PollInterval: time.Millisecond, PollAttempts: 5})
	d.wait = func(ctx context.Context, _ time.Duration) error { return nil }

	return &fixture{
		dispatcher: d,
		ci:         fake,
		secrets:    secrets,
		tasks:      tasks,
		project:    project,
		workflow:   workflow,
		metrics:    m,
	}
}

func (f *fixture) createSecret(t *testing.T, value string, maxCalls *int, currentCalls int) *domain.Secret {
	t.Helper()
	secret, err := f.secrets.Create(context.Background(), &domain.Secret{
		Name:         "secret-" + value,
		Value:        value,
		ProjectID:    &f.project.ID,
		MaxCalls:     maxCalls,
		CurrentCalls: currentCalls,
	})
	require.NoError(t, err)
	return secret
}

func (f *fixture) taskCount(t *testing.T) int64 {
	t.Helper()
	page, err := f.tasks.List(context.Background(), repository.TaskFilter{})
	require.NoError(t, err)
	return page.Total
}

func (f *fixture) currentCalls(t *testing.T, id int64) int {
	t.Helper()
	secret, err := f.secrets.FindByID(context.Background(), id)
	require.NoError(t, err)
	return secret.CurrentCalls
}

func intPtr(v int) *int {
	return &v
}

func TestDispatch_Success(t *testing.T) {
	f := setupFixture(t, "")
	secret := f.createSecret(t, "VALID", nil, 0)

	result, err := f.dispatcher.Dispatch(context.Background(), Request{
		ProjectID:    f.project.ID,
		DeployMethod: "static",
		Environment:  map[string]string{"B": "2", "A": "1"},
		Secret:       "VALID",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), result.RunID)
	assert.NotZero(t, result.TaskID)

	task, err := f.tasks.FindByID(context.Background(), result.TaskID)
	require.NoError(t, err)
	assert.Equal(t, int64(101), task.RunID)
	assert.Equal(t, f.project.ID, task.ProjectID)
	assert.Equal(t, domain.TaskStatusPending, task.Status)

	assert.Equal(t, 1, f.currentCalls(t, secret.ID))

	require.Len(t, f.ci.dispatched, 1)
	assert.Equal(t, map[string]any{
		"runs_on":            "ubuntu-latest",
		"username":           "customer",
		"repo":               "site",
		"branch":             "main",
		"build_command":      "npm ci;npm run build",
		"artifact_paths":     "dist,public",
		"compress_artifacts": "true",
		"env_vars":           "A=1,B=2",
		"encrypted":          "false",
	}, f.ci.dispatched[0])

	// The trigger targets the workflow's own branch, the method branch is only an input
	assert.Equal(t, "main", f.ci.refs[0].Branch)
	assert.Equal(t, "build.yml", f.ci.refs[0].WorkflowFile)

	count, err := testutil.GatherAndCount(f.metrics.Registry(), "bygga_dispatch_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDispatch_MethodDefaults(t *testing.T) {
	f := setupFixture(t, "")
	f.createSecret(t, "VALID", nil, 0)

	_, err := f.dispatcher.Dispatch(context.Background(), Request{
		ProjectID:    f.project.ID,
		DeployMethod: "docker",
		Secret:       "VALID",
	})
	require.NoError(t, err)

	inputs := f.ci.dispatched[0]
	assert.Equal(t, "self-hosted", inputs["runs_on"])
	assert.Equal(t, "release", inputs["branch"])
	assert.Equal(t, "", inputs["build_command"])
	assert.Equal(t, "false", inputs["compress_artifacts"])
	assert.Equal(t, "", inputs["env_vars"])
}

func TestDispatch_EncryptsEnvironmentWithToken(t *testing.T) {
	f := setupFixture(t, "ghp_workflow_token")
	f.createSecret(t, "VALID", nil, 0)

	_, err := f.dispatcher.Dispatch(context.Background(), Request{
		ProjectID:    f.project.ID,
		DeployMethod: "static",
		Environment:  map[string]string{"API_URL": "https://example.com/api"},
		Secret:       "VALID",
	})
	require.NoError(t, err)

	inputs := f.ci.dispatched[0]
	assert.Equal(t, "true", inputs["encrypted"])
	assert.Equal(t, "ghp_workflow_token", f.ci.refs[0].Token)

	plaintext, err := encryption.Open(inputs["env_vars"].(string), "ghp_workflow_token")
	require.NoError(t, err)

	var env map[string]string
	require.NoError(t, json.Unmarshal([]byte(plaintext), &env))
	assert.Equal(t, map[string]string{"API_URL": "https://example.com/api"}, env)
}

func TestDispatch_SingleUseSecret(t *testing.T) {
	f := setupFixture(t, "")
	secret := f.createSecret(t, "ONCE", intPtr(1), 0)

	req := Request{ProjectID: f.project.ID, DeployMethod: "static", Secret: "ONCE"}

	_, err := f.dispatcher.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, f.currentCalls(t, secret.ID))

	_, err = f.dispatcher.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))

	assert.Equal(t, 1, f.ci.dispatchCount())
	assert.Equal(t, int64(1), f.taskCount(t))
	assert.Equal(t, 1, f.currentCalls(t, secret.ID))
}

func TestDispatch_ExhaustedSecretNeverTriggers(t *testing.T) {
	f := setupFixture(t, "")
	f.createSecret(t, "SPENT", intPtr(3), 3)

	_, err := f.dispatcher.Dispatch(context.Background(), Request{
		ProjectID:    f.project.ID,
		DeployMethod: "static",
		Secret:       "SPENT",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))
	assert.Equal(t, 0, f.ci.dispatchCount())
	assert.Equal(t, int64(0), f.taskCount(t))
}

func TestDispatch_CorrelationTimeout(t *testing.T) {
	f := setupFixture(t, "")
	secret := f.createSecret(t, "VALID", intPtr(5), 2)
	f.ci.startRun = false

	_, err := f.dispatcher.Dispatch(context.Background(), Request{
		ProjectID:    f.project.ID,
		DeployMethod: "static",
		Secret:       "VALID",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindCorrelationTimeout, domain.KindOf(err))
	assert.Equal(t, 1, f.ci.dispatchCount())
	assert.Equal(t, int64(0), f.taskCount(t))
	assert.Equal(t, 2, f.currentCalls(t, secret.ID), "a timed out dispatch is not charged")
}

func TestDispatch_CorrelationSurvivesListErrors(t *testing.T) {
	f := setupFixture(t, "")
	f.createSecret(t, "VALID", nil, 0)

	list := f.ci.ListRunsFunc
	calls := 0
	f.ci.ListRunsFunc = func(ctx context.Context, ref ci.WorkflowRef, perPage int) ([]ci.Run, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("502 bad gateway")
		}
		return list(ctx, ref, perPage)
	}

	result, err := f.dispatcher.Dispatch(context.Background(), Request{
		ProjectID:    f.project.ID,
		DeployMethod: "static",
		Secret:       "VALID",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), result.RunID)
}

func TestDispatch_TriggerFailure(t *testing.T) {
	f := setupFixture(t, "")
	secret := f.createSecret(t, "VALID", intPtr(1), 0)
	f.ci.dispatchErr = errors.New("422 unexpected inputs")

	_, err := f.dispatcher.Dispatch(context.Background(), Request{
		ProjectID:    f.project.ID,
		DeployMethod: "static",
		Secret:       "VALID",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindUpstream, domain.KindOf(err))
	assert.Equal(t, int64(0), f.taskCount(t))
	assert.Equal(t, 0, f.currentCalls(t, secret.ID))
}

func TestDispatch_TaskPersistenceFailure(t *testing.T) {
	f := setupFixture(t, "")
	secret := f.createSecret(t, "VALID", intPtr(1), 0)
	f.dispatcher.tasks = failingTasks{TaskRepository: f.tasks}

	_, err := f.dispatcher.Dispatch(context.Background(), Request{
		ProjectID:    f.project.ID,
		DeployMethod: "static",
		Secret:       "VALID",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindPersistence, domain.KindOf(err))
	assert.Contains(t, domain.MessageOf(err), "101", "the message must say the run was started")
	assert.Equal(t, 0, f.currentCalls(t, secret.ID), "no task means no charge")
}

func TestDispatch_CallerCancellationDoesNotAbort(t *testing.T) {
	f := setupFixture(t, "")
	f.createSecret(t, "VALID", nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatch := f.ci.DispatchFunc
	f.ci.DispatchFunc = func(dctx context.Context, ref ci.WorkflowRef, inputs map[string]any) error {
		cancel()
		return dispatch(dctx, ref, inputs)
	}
	f.dispatcher.wait = sleep

	result, err := f.dispatcher.Dispatch(ctx, Request{
		ProjectID:    f.project.ID,
		DeployMethod: "static",
		Secret:       "VALID",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), result.RunID)
	assert.Equal(t, int64(1), f.taskCount(t))
}

func TestDispatch_Rejections(t *testing.T) {
	f := setupFixture(t, "")
	f.createSecret(t, "VALID", nil, 0)

	orphanProjects := f.dispatcher.projects
	orphan, err := orphanProjects.Create(context.Background(), &domain.Project{Name: "orphan", Description: "d"})
	require.NoError(t, err)
	orphanSecret := &domain.Secret{Name: "orphan", Value: "ORPHAN", ProjectID: &orphan.ID}
	_, err = f.secrets.Create(context.Background(), orphanSecret)
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     Request
		kind    domain.ErrorKind
		message string
	}{
		{
			name:    "missing project id",
			req:     Request{DeployMethod: "static", Secret: "VALID"},
			kind:    domain.KindValidation,
			message: "project_id is required",
		},
		{
			name:    "missing secret",
			req:     Request{ProjectID: f.project.ID, DeployMethod: "static"},
			kind:    domain.KindValidation,
			message: "secret is required",
		},
		{
			name:    "missing deploy method",
			req:     Request{ProjectID: f.project.ID, Secret: "VALID"},
			kind:    domain.KindValidation,
			message: "deploy_method is required",
		},
		{
			name: "wrong secret",
			req:  Request{ProjectID: f.project.ID, DeployMethod: "static", Secret: "WRONG"},
			kind: domain.KindAuthorization,
		},
		{
			name: "secret of another project",
			req:  Request{ProjectID: 999, DeployMethod: "static", Secret: "VALID"},
			kind: domain.KindAuthorization,
		},
		{
			name:    "unknown deploy method",
			req:     Request{ProjectID: f.project.ID, DeployMethod: "rsync", Secret: "VALID"},
			kind:    domain.KindValidation,
			message: `deploy method "rsync" does not exist`,
		},
		{
			name:    "project without workflow",
			req:     Request{ProjectID: orphan.ID, DeployMethod: "static", Secret: "ORPHAN"},
			kind:    domain.KindNotFound,
			message: "workflow of the project not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dispatcher.Dispatch(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))
			if tt.message != "" {
				assert.Equal(t, tt.message, domain.MessageOf(err))
			}
		})
	}

	assert.Equal(t, 0, f.ci.dispatchCount())
	assert.Equal(t, int64(0), f.taskCount(t))
}

func TestBuildEnvironment(t *testing.T) {
	t.Run("plain join is sorted", func(t *testing.T) {
		payload, encrypted, err := BuildEnvironment(map[string]string{"Z": "26", "A": "1", "M": "x=y"}, "")
		require.NoError(t, err)
		assert.False(t, encrypted)
		assert.Equal(t, "A=1,M=x=y,Z=26", payload)
	})

	t.Run("empty environment with token is flagged encrypted", func(t *testing.T) {
		payload, encrypted, err := BuildEnvironment(nil, "token")
		require.NoError(t, err)
		assert.True(t, encrypted)
		assert.Equal(t, "", payload)
	})

	t.Run("sealed with token", func(t *testing.T) {
		payload, encrypted, err := BuildEnvironment(map[string]string{"K": "V"}, "token")
		require.NoError(t, err)
		assert.True(t, encrypted)

		plaintext, err := encryption.Open(payload, "token")
		require.NoError(t, err)
		assert.JSONEq(t, `{"K":"V"}`, plaintext)
	})
}

func TestTaskReport(t *testing.T) {
	f := setupFixture(t, "")
	task := domain.NewTask(f.project.ID, 555)
	require.NoError(t, f.tasks.Create(context.Background(), &task))

	updated := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	f.ci.GetRunFunc = func(ctx context.Context, ref ci.WorkflowRef, runID int64) (*ci.Run, error) {
		assert.Equal(t, int64(555), runID)
		return &ci.Run{ID: runID, Status: "completed", Conclusion: "success", UpdatedAt: updated}, nil
	}
	f.ci.ListArtifactsFunc = func(ctx context.Context, ref ci.WorkflowRef, runID int64) ([]ci.Artifact, error) {
		return []ci.Artifact{{ID: 9, Name: "dist", SizeInBytes: 1024}}, nil
	}

	report, err := f.dispatcher.TaskReport(context.Background(), task.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusCompleted, report.Status)
	assert.Equal(t, "success", report.Conclusion)
	assert.Equal(t, updated, report.UpdatedAt)
	require.Len(t, report.Artifacts, 1)
	assert.Equal(t, "https://github.com/acme/builder/actions/runs/555/artifacts/9", report.Artifacts[0].DownloadURL)

	// Sanitized project
	assert.Nil(t, report.Project.RepoOwner)
	assert.Nil(t, report.Project.WorkflowID)

	// The stored status is write-once
	stored, err := f.tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, stored.Status)
}

func TestTaskReport_InProgressSkipsArtifacts(t *testing.T) {
	f := setupFixture(t, "")
	task := domain.NewTask(f.project.ID, 556)
	require.NoError(t, f.tasks.Create(context.Background(), &task))

	f.ci.GetRunFunc = func(ctx context.Context, ref ci.WorkflowRef, runID int64) (*ci.Run, error) {
		return &ci.Run{ID: runID, Status: "in_progress"}, nil
	}
	f.ci.ListArtifactsFunc = func(ctx context.Context, ref ci.WorkflowRef, runID int64) ([]ci.Artifact, error) {
		t.Fatal("artifacts must not be listed for unfinished runs")
		return nil, nil
	}

	report, err := f.dispatcher.TaskReport(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, report.Status)
	assert.Empty(t, report.Artifacts)
}

func TestTaskReport_Errors(t *testing.T) {
	f := setupFixture(t, "")

	_, err := f.dispatcher.TaskReport(context.Background(), 0)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = f.dispatcher.TaskReport(context.Background(), 12345)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	task := domain.NewTask(f.project.ID, 557)
	require.NoError(t, f.tasks.Create(context.Background(), &task))
	f.ci.GetRunFunc = func(ctx context.Context, ref ci.WorkflowRef, runID int64) (*ci.Run, error) {
		return nil, errors.New("404 not found")
	}
	_, err = f.dispatcher.TaskReport(context.Background(), task.ID)
	assert.Equal(t, domain.KindUpstream, domain.KindOf(err))
}
