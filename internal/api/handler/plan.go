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

// PlanHandler serves the yield plan catalog.
type PlanHandler struct {
	planSvc *service.PlanService
}

func NewPlanHandler(planSvc *service.PlanService) *PlanHandler {
	return &PlanHandler{planSvc: planSvc}
}

// ListPlans handles GET /v1/plans
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.planSvc.ListActivePlans(r.Context())
	if err != nil {
		zap.L().Error("list plans failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "plan/list-failed", "Failed to list plans")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": plans, "count": len(plans)})
}

// GetPlan handles GET /v1/plans/{id}
func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-plan-id", "Invalid plan ID")
		return
	}

	plan, err := h.planSvc.GetPlan(r.Context(), planID)
	if err != nil {
		if errors.Is(err, models.ErrPlanNotFound) {
			RespondError(w, r, http.StatusNotFound, "plan/not-found", "Plan not found")
			return
		}
		zap.L().Error("get plan failed", zap.Error(err), zap.String("plan_id", planID.String()))
		RespondError(w, r, http.StatusInternalServerError, "plan/read-failed", "Failed to get plan")
		return
	}
	RespondJSON(w, http.StatusOK, plan)
}
