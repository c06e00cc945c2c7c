package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/bygga/bygga/billing"
	"github.com/bygga/bygga/domain"
	"github.com/go-chi/chi/v5"
)

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req billing.OrderRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.billing.CreateOrder(r.Context(), req)
	if err != nil {
		LogOperationError("create_order", "handlers", err,
			"project_id", req.ProjectID,
			"order_type", req.OrderType)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, order, "order created")
}

// GetOrder looks up an order by gateway uuid or order id. A uuid needs ?project_id=.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	projectID, err := queryInt64(r, "project_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var pid int64
	if projectID != nil {
		pid = *projectID
	}
	status, err := h.billing.OrderStatus(r.Context(), id, pid)
	if err != nil {
		LogOperationError("get_order", "handlers", err, "order", id)
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, status, "")
}

// webhookReply is the body the payment gateway gets back
type webhookReply struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// PaymentWebhook answers the gateway with real HTTP statuses: 200 acknowledges,
// 400 and 401 reject for good, 500 asks for a redelivery.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookReply{Status: "error", Message: "failed to read request body"})
		return
	}

	result, err := h.billing.HandleWebhook(r.Context(), body)
	if err != nil {
		status := webhookStatus(err)
		if status >= http.StatusInternalServerError {
			LogOperationError("payment_webhook", "handlers", err)
		} else {
			slog.Warn("Payment webhook rejected",
				"layer", "handlers",
				"operation", "payment_webhook",
				"error", err)
		}
		writeJSON(w, status, webhookReply{Status: "error", Message: domain.MessageOf(err)})
		return
	}

	if result.Outcome == billing.WebhookReceived {
		writeJSON(w, http.StatusOK, webhookReply{Status: "received"})
		return
	}
	writeJSON(w, http.StatusOK, webhookReply{Status: "success"})
}

func webhookStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
