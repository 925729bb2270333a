package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/ayo6706/currency-converter/internal/api/middleware"
	"github.com/ayo6706/currency-converter/internal/api/problem"
	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/ayo6706/currency-converter/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ExchangeHandler struct {
	engine   *service.ExchangeService
	quotes   *service.QuoteService
	accounts *service.AccountService
}

func NewExchangeHandler(engine *service.ExchangeService, quotes *service.QuoteService, accounts *service.AccountService) *ExchangeHandler {
	return &ExchangeHandler{engine: engine, quotes: quotes, accounts: accounts}
}

type exchangeRequest struct {
	SourceAmount        decimal.Decimal  `json:"source_amount"`
	SourceCurrency      domain.Currency  `json:"source_currency"`
	DestinationAmount   *decimal.Decimal `json:"destination_amount,omitempty"`
	DestinationCurrency domain.Currency  `json:"destination_currency"`
}

type receiptResponse struct {
	Kind              string           `json:"kind"`
	Operation         models.Operation `json:"operation"`
	CommissionFee     decimal.Decimal  `json:"commission_fee"`
	TransactionNumber uint64           `json:"transaction_number"`
	Timestamp         time.Time        `json:"timestamp"`
}

// CreateExchange performs one currency exchange. When destination_amount is
// omitted the current quote is used.
func (h *ExchangeHandler) CreateExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", err.Error())
		return
	}
	if req.SourceCurrency == "" || req.DestinationCurrency == "" {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "source_currency and destination_currency are required")
		return
	}
	if h.accounts.Corrupted() {
		RespondError(w, r, http.StatusServiceUnavailable, "ledger/corrupted", "ledger requires manual reconciliation")
		return
	}

	op := models.ExchangeOperation{
		SourceAmount:        req.SourceAmount,
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
	}
	if req.DestinationAmount != nil {
		op.DestinationAmount = *req.DestinationAmount
	} else if req.SourceCurrency != req.DestinationCurrency {
		quote, err := h.quotes.Quote(r.Context(), req.SourceAmount, req.SourceCurrency, req.DestinationCurrency)
		if err != nil {
			writeQuoteError(w, r, err)
			return
		}
		op.DestinationAmount = quote.Operation.DestinationAmount
	}

	receipt, err := h.engine.Perform(r.Context(), op)
	if err != nil {
		writeExchangeError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, receiptResponse{
		Kind:              receipt.Operation.Kind(),
		Operation:         receipt.Operation,
		CommissionFee:     receipt.CommissionFee,
		TransactionNumber: receipt.TransactionNumber,
		Timestamp:         receipt.Timestamp,
	})
}

func writeExchangeError(w http.ResponseWriter, r *http.Request, err error) {
	var exErr *models.ExchangeError
	if !errors.As(err, &exErr) {
		zap.L().Error("exchange failed", zap.Error(err), zap.String("trace_id", middleware.TraceIDFromContext(r.Context())))
		RespondError(w, r, http.StatusInternalServerError, "exchange/failed", "exchange failed")
		return
	}

	status, slug := exchangeErrorStatus(exErr)
	if exErr.Fatal() {
		zap.L().Error("CRITICAL: exchange left ledger inconsistent",
			zap.Error(err),
			zap.String("user_id", middleware.UserIDFromContext(r.Context())),
			zap.String("trace_id", middleware.TraceIDFromContext(r.Context())),
		)
	}
	problem.WriteDetails(w, r, problem.Details{
		Type:   problem.Type(slug),
		Status: status,
		Detail: err.Error(),
		Code:   exErr.Kind.String(),
	})
}

func exchangeErrorStatus(err *models.ExchangeError) (int, string) {
	switch err.Kind {
	case models.SameCurrency:
		return http.StatusBadRequest, "exchange/same-currency"
	case models.UnsupportedOperation:
		return http.StatusBadRequest, "exchange/unsupported-operation"
	case models.DepositFailed:
		return http.StatusConflict, "exchange/deposit-failed"
	case models.RollbackFailed:
		return http.StatusInternalServerError, "exchange/rollback-failed"
	case models.WithdrawalFailed:
		if err.Cause != nil {
			switch err.Cause.Kind {
			case models.NothingToExchange:
				return http.StatusBadRequest, "exchange/nothing-to-exchange"
			case models.NotEnoughMoney:
				return http.StatusUnprocessableEntity, "exchange/not-enough-money"
			case models.NoAccount:
				return http.StatusUnprocessableEntity, "exchange/no-account"
			}
		}
		return http.StatusUnprocessableEntity, "exchange/withdrawal-failed"
	default:
		return http.StatusInternalServerError, "exchange/failed"
	}
}
