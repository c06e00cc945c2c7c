package dispatch

import (
	"context"

	"github.com/bygga/bygga/ci"
	"github.com/bygga/bygga/domain"
)

// TaskReport fetches the live state of a task's run. The stored task status is
// never refreshed, so this is the only source of current status.
func (d *Dispatcher) TaskReport(ctx context.Context, taskID int64) (*domain.TaskReport, error) {
	if taskID <= 0 {
		return nil, domain.ValidationError("task_id is required")
	}

	task, err := d.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, lookupError("task", err)
	}

	project, err := d.projects.FindByID(ctx, task.ProjectID)
	if err != nil {
		return nil, lookupError("project", err)
	}
	if project.WorkflowID == nil {
		return nil, domain.NotFoundError("workflow of the project")
	}
	workflow, err := d.workflows.FindByID(ctx, *project.WorkflowID)
	if err != nil {
		return nil, lookupError("workflow of the project", err)
	}

	ref := workflowRef(workflow)
	run, err := d.ci.GetRun(ctx, ref, task.RunID)
	if err != nil {
		return nil, domain.UpstreamError("failed to query workflow run", err)
	}

	status, err := domain.ParseTaskStatus(run.Status)
	if err != nil {
		status = domain.TaskStatusUnknown
	}

	report := &domain.TaskReport{
		Task:       *task,
		Project:    project.Public(),
		Status:     status,
		Conclusion: run.Conclusion,
		Artifacts:  []domain.Artifact{},
		UpdatedAt:  run.UpdatedAt,
	}

	if status == domain.TaskStatusCompleted {
		artifacts, err := d.ci.ListArtifacts(ctx, ref, task.RunID)
		if err != nil {
			return nil, domain.UpstreamError("failed to list run artifacts", err)
		}
		for _, a := range artifacts {
			report.Artifacts = append(report.Artifacts, domain.Artifact{
				ID:          a.ID,
				Name:        a.Name,
				SizeInBytes: a.SizeInBytes,
				DownloadURL: ci.ArtifactDownloadURL(workflow.RepoOwner, workflow.RepoName, task.RunID, a.ID),
			})
		}
	}

	return report, nil
}
