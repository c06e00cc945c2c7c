package handlers

import (
	"net/http"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/repository"
)

// ListProjects lists projects, filtered by name substring and workflow_id.
// Callers without the admin key get the public view.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	workflowID, err := queryInt64(r, "workflow_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := repository.ProjectFilter{
		Name:        r.URL.Query().Get("name"),
		WorkflowID:  workflowID,
		ListOptions: ParseListOptions(r),
	}
	page, err := h.projects.List(r.Context(), filter)
	if err != nil {
		LogOperationError("list_projects", "handlers", err)
		WriteServiceError(w, err)
		return
	}

	admin := APIKeyValid(r.Context())
	WritePage(w, page, func(p *domain.Project) ProjectView {
		return projectView(p, admin)
	})
}

func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.projects.Get(r.Context(), id)
	if err != nil {
		LogOperationError("get_project", "handlers", err, "project_id", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, projectView(p, APIKeyValid(r.Context())), "")
}

func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.projects.Create(r.Context(), req.toDomain(0))
	if err != nil {
		LogOperationError("create_project", "handlers", err, "project_name", req.Name)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, NewProjectView(created), "project created")
}

func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req ProjectRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.projects.Update(r.Context(), req.toDomain(id))
	if err != nil {
		LogOperationError("update_project", "handlers", err, "project_id", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, NewProjectView(updated), "project updated")
}

func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.projects.Remove(r.Context(), id); err != nil {
		LogOperationError("delete_project", "handlers", err, "project_id", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, nil, "project deleted")
}
