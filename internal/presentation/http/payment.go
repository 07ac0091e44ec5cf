package httppresentation

import (
	"net/http"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
)

var errMissingOrderID = failure.Validation("http: orderId is required")

type webhookRequest struct {
	OrderID   string `json:"orderId"`
	EventType string `json:"eventType"`
}

// paymentWebhook accepts the gateway's status callbacks. Redeliveries are
// answered 200 since the merge is idempotent.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.OrderID == "" {
		writeDomainError(w, errMissingOrderID)
		return
	}
	if err := h.deps.Payments.HandleGatewayEvent(r.Context(), req.OrderID, req.EventType); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
