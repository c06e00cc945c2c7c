package handlers

import (
	"net/http"
	"strconv"

	"github.com/bygga/bygga/dispatch"
)

// CreateTask dispatches a build. The secret in the body authorizes the call.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.tasks.Dispatch(r.Context(), dispatch.Request{
		ProjectID:    req.ProjectID,
		DeployMethod: req.DeployMethod,
		Environment:  req.Environment,
		Secret:       req.Secret,
	})
	if err != nil {
		LogOperationError("create_task", "handlers", err,
			"project_id", req.ProjectID,
			"deploy_method", req.DeployMethod)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, result, "task created")
}

// GetTask reports the live state of the run behind ?task_id=
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("task_id")
	if raw == "" {
		WriteError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	taskID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || taskID <= 0 {
		WriteError(w, http.StatusBadRequest, "invalid task_id: "+raw)
		return
	}

	report, err := h.tasks.TaskReport(r.Context(), taskID)
	if err != nil {
		LogOperationError("get_task", "handlers", err, "task_id", taskID)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, NewTaskView(report), "")
}
