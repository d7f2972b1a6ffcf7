package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/davidocha/coinvault/internal/models"
	"github.com/davidocha/coinvault/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WalletHandler serves wallet reads for the authenticated owner.
type WalletHandler struct {
	walletSvc *service.WalletService
}

func NewWalletHandler(walletSvc *service.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// ListWallets handles GET /v1/wallets
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	wallets, err := h.walletSvc.ListWallets(r.Context(), actorID)
	if err != nil {
		zap.L().Error("list wallets failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "wallet/list-failed", "Failed to list wallets")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": wallets, "count": len(wallets)})
}

// GetWallet handles GET /v1/wallets/{asset}
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	asset := strings.ToUpper(chi.URLParam(r, "asset"))
	wallet, err := h.walletSvc.GetWallet(r.Context(), actorID, asset)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnsupportedAsset):
			RespondError(w, r, http.StatusBadRequest, "wallet/unsupported-asset", "Unsupported asset")
		case errors.Is(err, models.ErrWalletNotFound):
			RespondError(w, r, http.StatusNotFound, "wallet/not-found", "Wallet not found")
		default:
			zap.L().Error("get wallet failed", zap.Error(err), zap.String("asset", asset))
			RespondError(w, r, http.StatusInternalServerError, "wallet/read-failed", "Failed to get wallet")
		}
		return
	}
	RespondJSON(w, http.StatusOK, wallet)
}

// CreateWallet handles POST /v1/wallets/{asset}
// Creating an already existing wallet returns the existing one.
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	asset := strings.ToUpper(chi.URLParam(r, "asset"))
	wallet, err := h.walletSvc.EnsureWallet(r.Context(), actorID, asset)
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedAsset) {
			RespondError(w, r, http.StatusBadRequest, "wallet/unsupported-asset", "Unsupported asset")
			return
		}
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("create wallet failed", zap.Error(err), zap.String("asset", asset))
		RespondError(w, r, http.StatusInternalServerError, "wallet/create-failed", "Failed to create wallet")
		return
	}
	RespondJSON(w, http.StatusCreated, wallet)
}
