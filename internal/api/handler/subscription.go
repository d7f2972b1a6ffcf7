package handler

import (
	"errors"
	"net/http"

	"github.com/davidocha/coinvault/internal/models"
	"github.com/davidocha/coinvault/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubscriptionHandler serves subscription reads and owner cancellation.
type SubscriptionHandler struct {
	planSvc   *service.PlanService
	cancelSvc *service.CancellationService
}

func NewSubscriptionHandler(planSvc *service.PlanService, cancelSvc *service.CancellationService) *SubscriptionHandler {
	return &SubscriptionHandler{planSvc: planSvc, cancelSvc: cancelSvc}
}

// ListSubscriptions handles GET /v1/subscriptions
func (h *SubscriptionHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	limit, offset, err := pageParams(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-pagination", err.Error())
		return
	}

	subs, err := h.planSvc.ListSubscriptions(r.Context(), actorID, limit, offset)
	if err != nil {
		zap.L().Error("list subscriptions failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "subscription/list-failed", "Failed to list subscriptions")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  subs,
		"limit":  limit,
		"offset": offset,
		"count":  len(subs),
	})
}

// GetSubscription handles GET /v1/subscriptions/{id}
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	subID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-subscription-id", "Invalid subscription ID")
		return
	}

	sub, err := h.planSvc.GetSubscription(r.Context(), actorID, subID, isAdmin)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSubscriptionNotFound):
			RespondError(w, r, http.StatusNotFound, "subscription/not-found", "Subscription not found")
		case errors.Is(err, models.ErrNotSubscriptionOwner):
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		default:
			zap.L().Error("get subscription failed", zap.Error(err), zap.String("subscription_id", subID.String()))
			RespondError(w, r, http.StatusInternalServerError, "subscription/read-failed", "Failed to get subscription")
		}
		return
	}
	RespondJSON(w, http.StatusOK, sub)
}

// CancelSubscription handles POST /v1/subscriptions/{id}/cancel
func (h *SubscriptionHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	subID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-subscription-id", "Invalid subscription ID")
		return
	}

	result, err := h.cancelSvc.Cancel(r.Context(), actorID, subID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSubscriptionNotFound):
			RespondError(w, r, http.StatusNotFound, "subscription/not-found", "Subscription not found")
		case errors.Is(err, models.ErrNotSubscriptionOwner):
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		case errors.Is(err, models.ErrSubscriptionNotActive):
			RespondError(w, r, http.StatusConflict, "subscription/not-active", "Subscription is no longer active")
		default:
			zap.L().Error("cancel subscription failed", zap.Error(err), zap.String("subscription_id", subID.String()))
			RespondError(w, r, http.StatusInternalServerError, "subscription/cancel-failed", "Failed to cancel subscription")
		}
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"subscription": result.Subscription,
		"refund":       result.Refund,
		"penalty":      result.Penalty,
	})
}
