package handler

import (
	"errors"
	"net/http"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/gateway"
	"github.com/ayo6706/currency-converter/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type QuoteHandler struct {
	svc *service.QuoteService
}

func NewQuoteHandler(svc *service.QuoteService) *QuoteHandler {
	return &QuoteHandler{svc: svc}
}

// GetQuote prices ?amount=&from=&to= without touching the ledger.
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := decimal.NewFromString(query.Get("amount"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a decimal number")
		return
	}
	from, err := domain.ParseCurrency(query.Get("from"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-currency", err.Error())
		return
	}
	to, err := domain.ParseCurrency(query.Get("to"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-currency", err.Error())
		return
	}

	quote, err := h.svc.Quote(r.Context(), amount, from, to)
	if err != nil {
		writeQuoteError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, quote)
}

func writeQuoteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidParams):
		RespondError(w, r, http.StatusBadRequest, "quote/invalid-params", err.Error())
	case errors.Is(err, gateway.ErrUnavailable):
		RespondError(w, r, http.StatusServiceUnavailable, "quote/unavailable", "rate provider unavailable, try again")
	default:
		zap.L().Error("quote failed", zap.Error(err))
		RespondError(w, r, http.StatusBadGateway, "quote/failed", "Failed to get quote")
	}
}
