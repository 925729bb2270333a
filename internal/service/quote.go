package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/gateway"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/shopspring/decimal"
)

// Quote is a priced exchange the caller can hand to the engine unchanged.
type Quote struct {
	Operation models.ExchangeOperation `json:"operation"`
	Rate      decimal.Decimal          `json:"rate"`
}

// QuoteService prices exchanges. The engine never calls it; quoting belongs
// to whoever builds the operation.
type QuoteService struct {
	rates gateway.RateProvider
}

func NewQuoteService(rates gateway.RateProvider) *QuoteService {
	return &QuoteService{rates: rates}
}

// Quote converts amount of from into to through the EUR based rates.
func (s *QuoteService) Quote(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) (*Quote, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", gateway.ErrInvalidParams)
	}
	fromRate, err := s.rates.Rate(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("rate for %s: %w", from, err)
	}
	toRate, err := s.rates.Rate(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("rate for %s: %w", to, err)
	}
	if !fromRate.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive rate for %s", gateway.ErrUnavailable, from)
	}

	dest := domain.NewMoney(amount, from).Convert(to, fromRate, toRate)
	return &Quote{
		Operation: models.ExchangeOperation{
			SourceAmount:        amount,
			SourceCurrency:      from,
			DestinationAmount:   dest.Amount,
			DestinationCurrency: to,
		},
		Rate: toRate.Div(fromRate),
	}, nil
}
