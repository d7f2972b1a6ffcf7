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

// TransactionHandler serves the owner-facing transaction surface: history
// reads plus withdraw, exchange, and invest submissions.
type TransactionHandler struct {
	processor *service.TransactionProcessor
	rates     service.RateSource
}

func NewTransactionHandler(processor *service.TransactionProcessor, rates service.RateSource) *TransactionHandler {
	return &TransactionHandler{processor: processor, rates: rates}
}

// ListTransactions handles GET /v1/transactions
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
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

	txs, err := h.processor.ListTransactions(r.Context(), actorID, limit, offset)
	if err != nil {
		zap.L().Error("list transactions failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "transaction/list-failed", "Failed to list transactions")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  txs,
		"limit":  limit,
		"offset": offset,
		"count":  len(txs),
	})
}

// GetTransaction handles GET /v1/transactions/{id}
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	txID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-transaction-id", "Invalid transaction ID")
		return
	}

	tx, err := h.processor.GetTransaction(r.Context(), actorID, txID, isAdmin)
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			RespondError(w, r, http.StatusNotFound, "transaction/not-found", "Transaction not found")
			return
		}
		zap.L().Error("get transaction failed", zap.Error(err), zap.String("transaction_id", txID.String()))
		RespondError(w, r, http.StatusInternalServerError, "transaction/read-failed", "Failed to get transaction")
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

type withdrawRequest struct {
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
	Note        string `json:"note"`
}

// Withdraw handles POST /v1/transactions/withdraw
// The withdrawal is queued for manual approval; 202 means accepted, not paid.
func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a decimal string")
		return
	}

	tx, err := h.processor.Submit(r.Context(), service.WithdrawRequest{
		OwnerID:     actorID,
		Asset:       strings.ToUpper(strings.TrimSpace(req.Asset)),
		Amount:      amount,
		Destination: strings.TrimSpace(req.Destination),
		Note:        req.Note,
	})
	if err != nil {
		h.respondSubmitError(w, r, err, "withdraw")
		return
	}
	RespondJSON(w, http.StatusAccepted, tx)
}

type exchangeRequest struct {
	FromAsset string `json:"from_asset"`
	ToAsset   string `json:"to_asset"`
	Amount    string `json:"amount"`
	Rate      string `json:"rate,omitempty"`
}

// Exchange handles POST /v1/transactions/exchange
// The rate is taken from the request when present, otherwise from the
// configured rate source.
func (h *TransactionHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a decimal string")
		return
	}

	fromAsset := strings.ToUpper(strings.TrimSpace(req.FromAsset))
	toAsset := strings.ToUpper(strings.TrimSpace(req.ToAsset))

	var rate decimal.Decimal
	if strings.TrimSpace(req.Rate) != "" {
		rate, err = decimal.NewFromString(strings.TrimSpace(req.Rate))
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-rate", "rate must be a decimal string")
			return
		}
	} else {
		rate, err = h.rates.GetRate(r.Context(), fromAsset, toAsset)
		if err != nil {
			zap.L().Error("rate lookup failed", zap.Error(err), zap.String("from", fromAsset), zap.String("to", toAsset))
			RespondError(w, r, http.StatusBadGateway, "exchange/rate-unavailable", "Conversion rate unavailable")
			return
		}
	}

	tx, err := h.processor.Submit(r.Context(), service.ExchangeRequest{
		OwnerID:   actorID,
		FromAsset: fromAsset,
		ToAsset:   toAsset,
		Amount:    amount,
		Rate:      rate,
	})
	if err != nil {
		h.respondSubmitError(w, r, err, "exchange")
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}

type investRequest struct {
	PlanID string `json:"plan_id"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// Invest handles POST /v1/transactions/invest
func (h *TransactionHandler) Invest(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req investRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	planID, err := uuid.Parse(strings.TrimSpace(req.PlanID))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-plan-id", "Invalid plan_id")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a decimal string")
		return
	}

	tx, err := h.processor.Submit(r.Context(), service.InvestRequest{
		OwnerID: actorID,
		PlanID:  planID,
		Asset:   strings.ToUpper(strings.TrimSpace(req.Asset)),
		Amount:  amount,
	})
	if err != nil {
		h.respondSubmitError(w, r, err, "invest")
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}

func (h *TransactionHandler) respondSubmitError(w http.ResponseWriter, r *http.Request, err error, kind string) {
	switch {
	case errors.Is(err, models.ErrInvalidAmount):
		RespondError(w, r, http.StatusBadRequest, "transaction/invalid-amount", err.Error())
	case errors.Is(err, models.ErrUnsupportedAsset):
		RespondError(w, r, http.StatusBadRequest, "transaction/unsupported-asset", "Unsupported asset")
	case errors.Is(err, models.ErrSameAsset):
		RespondError(w, r, http.StatusBadRequest, "exchange/same-asset", "Source and destination assets must differ")
	case errors.Is(err, models.ErrBelowWithdrawalMin):
		RespondError(w, r, http.StatusBadRequest, "withdraw/below-minimum", err.Error())
	case errors.Is(err, models.ErrInsufficientFunds):
		RespondError(w, r, http.StatusBadRequest, "transaction/insufficient-funds", "Insufficient funds")
	case errors.Is(err, models.ErrWalletNotFound):
		RespondError(w, r, http.StatusNotFound, "wallet/not-found", "Wallet not found")
	case errors.Is(err, models.ErrPlanNotFound):
		RespondError(w, r, http.StatusNotFound, "plan/not-found", "Plan not found")
	case errors.Is(err, models.ErrPlanInactive):
		RespondError(w, r, http.StatusConflict, "plan/inactive", "Plan is closed for new subscriptions")
	case errors.Is(err, models.ErrAmountOutOfRange):
		RespondError(w, r, http.StatusBadRequest, "plan/amount-out-of-range", "Amount outside the plan's limits")
	default:
		zap.L().Error("submit transaction failed", zap.Error(err), zap.String("kind", kind))
		RespondError(w, r, http.StatusInternalServerError, "transaction/submit-failed", "Failed to submit transaction")
	}
}
