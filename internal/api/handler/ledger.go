package handler

import (
	"net/http"

	"github.com/ayo6706/currency-converter/internal/service"
	"go.uber.org/zap"
)

// LedgerHandler exposes operator actions on the ledger as a whole.
type LedgerHandler struct {
	reconciliation *service.ReconciliationService
}

func NewLedgerHandler(reconciliation *service.ReconciliationService) *LedgerHandler {
	return &LedgerHandler{reconciliation: reconciliation}
}

// Reconcile runs the integrity checks on demand.
func (h *LedgerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciliation.Run(r.Context())
	if err != nil {
		zap.L().Error("reconciliation failed", zap.Error(err))
		RespondError(w, r, http.StatusServiceUnavailable, "ledger/reconciliation-failed", "reconciliation could not read durable storage")
		return
	}
	status := http.StatusOK
	if !report.Balanced() {
		status = http.StatusConflict
	}
	RespondJSON(w, status, report)
}
