package handler

import (
	"errors"
	"net/http"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// ListAccounts returns every account together with the transaction counter.
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.svc.Snapshot())
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	currency, err := domain.ParseCurrency(chi.URLParam(r, "currency"))
	if err != nil {
		RespondError(w, r, http.StatusNotFound, "account/unsupported-currency", err.Error())
		return
	}

	account, err := h.svc.GetAccount(currency)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedCurrency) {
			RespondError(w, r, http.StatusNotFound, "account/unsupported-currency", err.Error())
			return
		}
		zap.L().Error("account missing for supported currency", zap.Error(err), zap.String("currency", currency.Code()))
		RespondError(w, r, http.StatusInternalServerError, "account/read-failed", "Failed to read account")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// ResetUserData restores the default balances and the free transaction
// allowance.
func (h *AccountHandler) ResetUserData(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.ResetUserData(r.Context())
	zap.L().Info("user data reset", zap.Uint64("revision", snap.Revision))
	RespondJSON(w, http.StatusOK, snap)
}
