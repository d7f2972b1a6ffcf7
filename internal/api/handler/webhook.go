package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/davidocha/coinvault/internal/models"
	"github.com/davidocha/coinvault/internal/service"
	"go.uber.org/zap"
)

// WebhookHandler handles incoming webhook events from the custody provider.
type WebhookHandler struct {
	webhookSvc    *service.WebhookService
	skipSignature bool
}

func NewWebhookHandler(webhookSvc *service.WebhookService, skipSignature bool) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc, skipSignature: skipSignature}
}

// HandleDepositWebhook handles POST /v1/webhooks/deposit
// It verifies the HMAC signature and credits the confirmed deposit.
func (h *WebhookHandler) HandleDepositWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	if !h.skipSignature {
		signature := r.Header.Get("X-Webhook-Signature")
		if err := h.webhookSvc.VerifySignature(body, signature); err != nil {
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
			return
		}
	}

	var event service.DepositEvent
	if err := json.Unmarshal(body, &event); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid webhook payload")
		return
	}

	tx, err := h.webhookSvc.ProcessDeposit(r.Context(), event)
	if err != nil {
		zap.L().Error("process deposit webhook failed", zap.Error(err), zap.String("reference", event.Reference))
		switch {
		case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, models.ErrUnsupportedAsset):
			RespondError(w, r, http.StatusBadRequest, "webhook/invalid-event", err.Error())
		default:
			RespondError(w, r, http.StatusInternalServerError, "webhook/processing-failed", "Failed to process deposit event")
		}
		return
	}

	RespondJSON(w, http.StatusOK, tx)
}
