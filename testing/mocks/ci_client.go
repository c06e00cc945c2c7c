package mocks

import (
	"context"

	"github.com/bygga/bygga/ci"
)

// MockCIClient implements the ci.Client interface for testing
type MockCIClient struct {
	ListRunsFunc      func(ctx context.Context, ref ci.WorkflowRef, perPage int) ([]ci.Run, error)
	DispatchFunc      func(ctx context.Context, ref ci.WorkflowRef, inputs map[string]any) error
	GetRunFunc        func(ctx context.Context, ref ci.WorkflowRef, runID int64) (*ci.Run, error)
	ListArtifactsFunc func(ctx context.Context, ref ci.WorkflowRef, runID int64) ([]ci.Artifact, error)
}

func (m *MockCIClient) ListRuns(ctx context.Context, ref ci.WorkflowRef, perPage int) ([]ci.Run, error) {
	if m.ListRunsFunc != nil {
		return m.ListRunsFunc(ctx, ref, perPage)
	}
	return []ci.Run{}, nil
}

func (m *MockCIClient) Dispatch(ctx context.Context, ref ci.WorkflowRef, inputs map[string]any) error {
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, ref, inputs)
	}
	return nil
}

func (m *MockCIClient) GetRun(ctx context.Context, ref ci.WorkflowRef, runID int64) (*ci.Run, error) {
	if m.GetRunFunc != nil {
		return m.GetRunFunc(ctx, ref, runID)
	}
	return &ci.Run{ID: runID, Status: "queued"}, nil
}

func (m *MockCIClient) ListArtifacts(ctx context.Context, ref ci.WorkflowRef, runID int64) ([]ci.Artifact, error) {
	if m.ListArtifactsFunc != nil {
		return m.ListArtifactsFunc(ctx, ref, runID)
	}
	return []ci.Artifact{}, nil
}
