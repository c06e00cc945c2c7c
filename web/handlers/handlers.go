// Package handlers provides the JSON HTTP handlers of the bygga API.
package handlers

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/bygga/bygga/billing"
	"github.com/bygga/bygga/dispatch"
	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/project"
)

// TaskService dispatches builds and reports on them
type TaskService interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
	TaskReport(ctx context.Context, taskID int64) (*domain.TaskReport, error)
}

// BillingService creates orders and consumes payment webhooks
type BillingService interface {
	CreateOrder(ctx context.Context, req billing.OrderRequest) (*billing.Order, error)
	OrderStatus(ctx context.Context, id string, projectID int64) (*billing.OrderStatus, error)
	HandleWebhook(ctx context.Context, body []byte) (*billing.WebhookResult, error)
}

var (
	_ TaskService    = (*dispatch.Dispatcher)(nil)
	_ BillingService = (*billing.Service)(nil)
)

// Handlers holds the services behind the API endpoints
type Handlers struct {
	projects     project.ProjectManager
	workflows    project.WorkflowManager
	secrets      project.SecretManager
	tasks        TaskService
	billing      BillingService
	apiKeyDigest string
	version      string
}

func New(
	projects project.ProjectManager,
	workflows project.WorkflowManager,
	secrets project.SecretManager,
	tasks TaskService,
	billingService BillingService,
	apiKey string,
	version string,
) *Handlers {
	return &Handlers{
		projects:     projects,
		workflows:    workflows,
		secrets:      secrets,
		tasks:        tasks,
		billing:      billingService,
		apiKeyDigest: APIKeyDigest(apiKey),
		version:      version,
	}
}

// APIKeyDigest is the md5 hex digest clients send in the x-api-key header
func APIKeyDigest(apiKey string) string {
	sum := md5.Sum([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// CheckAPIKey compares a presented x-api-key header with the expected digest
func CheckAPIKey(presented, digest string) bool {
	if presented == "" || digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(digest)) == 1
}

type contextKey int

const apiKeyValidKey contextKey = iota

// WithAPIKeyValid records on the context whether the request carried a valid admin key
func WithAPIKeyValid(ctx context.Context, valid bool) context.Context {
	return context.WithValue(ctx, apiKeyValidKey, valid)
}

// APIKeyValid reports whether the request carried a valid admin key
func APIKeyValid(ctx context.Context) bool {
	valid, _ := ctx.Value(apiKeyValidKey).(bool)
	return valid
}

// Health reports liveness and the running version
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]string{"status": "ok", "version": h.version}, "")
}

// Auth checks the x-api-key header against the configured admin key
func (h *Handlers) Auth(w http.ResponseWriter, r *http.Request) {
	presented := r.Header.Get("x-api-key")
	if presented == "" {
		WriteError(w, http.StatusUnauthorized, "API key not provided")
		return
	}
	if !CheckAPIKey(presented, h.apiKeyDigest) {
		WriteError(w, http.StatusUnauthorized, "invalid API key")
		return
	}
	WriteSuccess(w, map[string]bool{"authorized": true}, "API key is valid")
}
