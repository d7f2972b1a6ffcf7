package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/davidocha/coinvault/internal/models"
	"github.com/davidocha/coinvault/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdminHandler groups the back-office surface: manual deposit credits, the
// withdrawal approval queue, plan management, and integrity checks.
type AdminHandler struct {
	processor    *service.TransactionProcessor
	planSvc      *service.PlanService
	integritySvc *service.IntegrityService
}

func NewAdminHandler(processor *service.TransactionProcessor, planSvc *service.PlanService, integritySvc *service.IntegrityService) *AdminHandler {
	return &AdminHandler{
		processor:    processor,
		planSvc:      planSvc,
		integritySvc: integritySvc,
	}
}

type creditDepositRequest struct {
	OwnerID     string `json:"owner_id"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Note        string `json:"note"`
	ReferenceID string `json:"reference_id"`
}

// CreditDeposit handles POST /v1/admin/deposits
// Back-office credit for deposits confirmed outside the webhook path.
func (h *AdminHandler) CreditDeposit(w http.ResponseWriter, r *http.Request) {
	var req creditDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	ownerID, err := uuid.Parse(strings.TrimSpace(req.OwnerID))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-owner-id", "Invalid owner_id")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a decimal string")
		return
	}

	tx, err := h.processor.Submit(r.Context(), service.DepositRequest{
		OwnerID:     ownerID,
		Asset:       strings.ToUpper(strings.TrimSpace(req.Asset)),
		Amount:      amount,
		Note:        req.Note,
		ReferenceID: strings.TrimSpace(req.ReferenceID),
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidAmount):
			RespondError(w, r, http.StatusBadRequest, "transaction/invalid-amount", err.Error())
		case errors.Is(err, models.ErrUnsupportedAsset):
			RespondError(w, r, http.StatusBadRequest, "transaction/unsupported-asset", "Unsupported asset")
		default:
			zap.L().Error("credit deposit failed", zap.Error(err))
			RespondError(w, r, http.StatusInternalServerError, "deposit/credit-failed", "Failed to credit deposit")
		}
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}

// ListPendingWithdrawals handles GET /v1/admin/withdrawals
func (h *AdminHandler) ListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-pagination", err.Error())
		return
	}

	txs, err := h.processor.ListPendingWithdrawals(r.Context(), limit, offset)
	if err != nil {
		zap.L().Error("list pending withdrawals failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "withdraw/queue-list-failed", "Failed to list pending withdrawals")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  txs,
		"limit":  limit,
		"offset": offset,
		"count":  len(txs),
	})
}

// ApproveWithdrawal handles POST /v1/admin/withdrawals/{id}/approve
func (h *AdminHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	adminID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	txID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-transaction-id", "Invalid transaction ID")
		return
	}

	tx, err := h.processor.Approve(r.Context(), txID, adminID)
	if err != nil {
		h.respondDecisionError(w, r, err, txID)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

type rejectWithdrawalRequest struct {
	Reason string `json:"reason"`
}

// RejectWithdrawal handles POST /v1/admin/withdrawals/{id}/reject
func (h *AdminHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	adminID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	txID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-transaction-id", "Invalid transaction ID")
		return
	}

	var req rejectWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-reason", "reason is required")
		return
	}

	tx, err := h.processor.Reject(r.Context(), txID, adminID, req.Reason)
	if err != nil {
		h.respondDecisionError(w, r, err, txID)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

func (h *AdminHandler) respondDecisionError(w http.ResponseWriter, r *http.Request, err error, txID uuid.UUID) {
	switch {
	case errors.Is(err, models.ErrTransactionNotFound):
		RespondError(w, r, http.StatusNotFound, "transaction/not-found", "Transaction not found")
	case errors.Is(err, models.ErrNotPending):
		RespondError(w, r, http.StatusConflict, "withdraw/not-pending", "Withdrawal is not pending approval")
	case errors.Is(err, models.ErrInsufficientFunds):
		RespondError(w, r, http.StatusConflict, "withdraw/insufficient-funds", "Owner balance no longer covers the withdrawal")
	default:
		zap.L().Error("withdrawal decision failed", zap.Error(err), zap.String("transaction_id", txID.String()))
		RespondError(w, r, http.StatusInternalServerError, "withdraw/decision-failed", "Failed to process withdrawal decision")
	}
}

type createPlanRequest struct {
	Name         string  `json:"name"`
	MinAmount    string  `json:"min_amount"`
	MaxAmount    *string `json:"max_amount,omitempty"`
	YieldRate    string  `json:"yield_rate"`
	DurationDays int     `json:"duration_days"`
}

// CreatePlan handles POST /v1/admin/plans
func (h *AdminHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	adminID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	minAmount, err := decimal.NewFromString(strings.TrimSpace(req.MinAmount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-min-amount", "min_amount must be a decimal string")
		return
	}
	var maxAmount *decimal.Decimal
	if req.MaxAmount != nil {
		parsed, err := decimal.NewFromString(strings.TrimSpace(*req.MaxAmount))
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-max-amount", "max_amount must be a decimal string")
			return
		}
		maxAmount = &parsed
	}
	yieldRate, err := decimal.NewFromString(strings.TrimSpace(req.YieldRate))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-yield-rate", "yield_rate must be a decimal string")
		return
	}

	plan, err := h.planSvc.CreatePlan(r.Context(), adminID, service.CreatePlanParams{
		Name:         strings.TrimSpace(req.Name),
		MinAmount:    minAmount,
		MaxAmount:    maxAmount,
		YieldRate:    yieldRate,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidAmount) {
			RespondError(w, r, http.StatusBadRequest, "plan/invalid-terms", err.Error())
			return
		}
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("create plan failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "plan/create-failed", "Failed to create plan")
		return
	}
	RespondJSON(w, http.StatusCreated, plan)
}

type setPlanActiveRequest struct {
	Active bool `json:"active"`
}

// SetPlanActive handles PATCH /v1/admin/plans/{id}/active
func (h *AdminHandler) SetPlanActive(w http.ResponseWriter, r *http.Request) {
	adminID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	planID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-plan-id", "Invalid plan ID")
		return
	}

	var req setPlanActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	if err := h.planSvc.SetPlanActive(r.Context(), adminID, planID, req.Active); err != nil {
		if errors.Is(err, models.ErrPlanNotFound) {
			RespondError(w, r, http.StatusNotFound, "plan/not-found", "Plan not found")
			return
		}
		zap.L().Error("set plan active failed", zap.Error(err), zap.String("plan_id", planID.String()))
		RespondError(w, r, http.StatusInternalServerError, "plan/update-failed", "Failed to update plan")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"plan_id": planID, "active": req.Active})
}

// RunIntegrityCheck handles GET /v1/admin/integrity
func (h *AdminHandler) RunIntegrityCheck(w http.ResponseWriter, r *http.Request) {
	report, err := h.integritySvc.Check(r.Context())
	if err != nil {
		zap.L().Error("integrity check failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "integrity/check-failed", "Failed to run integrity check")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"clean":            report.Clean(),
		"negative_wallets": report.NegativeWallets,
		"shortfall_assets": report.ShortfallAssets,
	})
}
