package domain

import "time"

// Task records one dispatch whose remote run was correlated.
// Status is written once at creation; live state comes from the CI system.
type Task struct {
	ID        int64
	ProjectID int64
	RunID     int64
	Status    TaskStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewTask(projectID, runID int64) Task {
	return Task{
		ProjectID: projectID,
		RunID:     runID,
		Status:    TaskStatusPending,
	}
}

// Artifact is a build output attached to a completed run
type Artifact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	SizeInBytes int64  `json:"size_in_bytes"`
	DownloadURL string `json:"download_url"`
}

// TaskReport is the live view of a task assembled from the CI system
type TaskReport struct {
	Task       Task
	Project    *Project
	Status     TaskStatus
	Conclusion string
	Artifacts  []Artifact
	UpdatedAt  time.Time
}
