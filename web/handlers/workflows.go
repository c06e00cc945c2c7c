package handlers

import (
	"net/http"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/repository"
)

func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter := repository.WorkflowFilter{
		Name:        r.URL.Query().Get("name"),
		ListOptions: ParseListOptions(r),
	}
	page, err := h.workflows.List(r.Context(), filter)
	if err != nil {
		LogOperationError("list_workflows", "handlers", err)
		WriteServiceError(w, err)
		return
	}
	WritePage(w, page, func(wf *domain.Workflow) WorkflowView {
		return NewWorkflowView(wf)
	})
}

func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	wf, err := h.workflows.Get(r.Context(), id)
	if err != nil {
		LogOperationError("get_workflow", "handlers", err, "workflow_id", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, NewWorkflowView(wf), "")
}

func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.workflows.Create(r.Context(), req.toDomain(0))
	if err != nil {
		LogOperationError("create_workflow", "handlers", err, "workflow_name", req.Name)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, NewWorkflowView(created), "workflow created")
}

func (h *Handlers) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req WorkflowRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.workflows.Update(r.Context(), req.toDomain(id))
	if err != nil {
		LogOperationError("update_workflow", "handlers", err, "workflow_id", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, NewWorkflowView(updated), "workflow updated")
}

func (h *Handlers) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.workflows.Remove(r.Context(), id); err != nil {
		LogOperationError("delete_workflow", "handlers", err, "workflow_id", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, nil, "workflow deleted")
}

// VerifyWorkflow checks the workflow repository and branch with the stored token
func (h *Handlers) VerifyWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.workflows.Verify(r.Context(), id)
	if err != nil {
		LogOperationError("verify_workflow", "handlers", err, "workflow_id", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, VerifyView{
		Reachable:     true,
		DefaultBranch: info.DefaultBranch,
		Branch:        info.Branch,
		Commit:        info.Commit,
		Branches:      info.Branches,
	}, "workflow repository is reachable")
}
