package handlers

import (
	"net/http"

	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/repository"
)

func (h *Handlers) ListSecrets(w http.ResponseWriter, r *http.Request) {
	projectID, err := queryInt64(r, "project_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := repository.SecretFilter{
		Name:        r.URL.Query().Get("name"),
		ProjectID:   projectID,
		ListOptions: ParseListOptions(r),
	}
	page, err := h.secrets.List(r.Context(), filter)
	if err != nil {
		LogOperationError("list_secrets", "handlers", err)
		WriteServiceError(w, err)
		return
	}
	WritePage(w, page, func(s *domain.Secret) SecretView {
		return NewSecretView(s)
	})
}

func (h *Handlers) GetSecret(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	secret, err := h.secrets.Get(r.Context(), id)
	if err != nil {
		LogOperationError("get_secret", "handlers", err, "secret_id", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, NewSecretView(secret), "")
}

func (h *Handlers) CreateSecret(w http.ResponseWriter, r *http.Request) {
	var req SecretRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.secrets.Create(r.Context(), req.toDomain(0))
	if err != nil {
		LogOperationError("create_secret", "handlers", err)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, NewSecretView(created), "secret created")
}

func (h *Handlers) UpdateSecret(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req SecretRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.secrets.Update(r.Context(), req.toDomain(id))
	if err != nil {
		LogOperationError("update_secret", "handlers", err, "secret_id", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, NewSecretView(updated), "secret updated")
}

func (h *Handlers) DeleteSecret(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.secrets.Remove(r.Context(), id); err != nil {
		LogOperationError("delete_secret", "handlers", err, "secret_id", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, nil, "secret deleted")
}

// ValidateSecret reports whether a secret is usable for a project without consuming a call
func (h *Handlers) ValidateSecret(w http.ResponseWriter, r *http.Request) {
	var req ValidateSecretRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	valid, err := h.secrets.Validate(r.Context(), req.Secret, req.ProjectID)
	if err != nil {
		LogOperationError("validate_secret", "handlers", err, "project_id", req.ProjectID)
		WriteServiceError(w, err)
		return
	}

	result := ValidateSecretResult{Valid: valid, Message: "secret is valid"}
	if !valid {
		result.Message = "secret is invalid, expired or exhausted"
	}
	WriteSuccess(w, result, "")
}
