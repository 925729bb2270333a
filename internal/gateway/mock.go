package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidParams = errors.New("invalid quote parameters")
	ErrUnavailable   = errors.New("rate provider temporarily unavailable")
)

// RateProvider represents the external exchange-rate source.
type RateProvider interface {
	// Rate returns the value of one EUR expressed in currency.
	Rate(ctx context.Context, currency domain.Currency) (decimal.Decimal, error)
}

// MockRateProvider serves fixed EUR-based rates. Latency and FailureRate let
// callers simulate a slow or flaky upstream.
type MockRateProvider struct {
	Latency time.Duration
	// FailureRate is the probability of failure (0.0 to 1.0). Default: 0
	FailureRate float64
	rates       map[domain.Currency]decimal.Decimal
}

// NewMockRateProvider creates a provider with the demo rates and no latency.
func NewMockRateProvider() *MockRateProvider {
	return &MockRateProvider{
		rates: map[domain.Currency]decimal.Decimal{
			domain.EUR: decimal.NewFromInt(1),
			domain.USD: decimal.RequireFromString("1.09"),
			domain.GBP: decimal.RequireFromString("0.87"),
			domain.JPY: decimal.NewFromInt(144),
		},
	}
}

func (g *MockRateProvider) Rate(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	if g.Latency > 0 {
		select {
		case <-time.After(g.Latency):
		case <-ctx.Done():
			return decimal.Zero, fmt.Errorf("rate lookup canceled: %w", ctx.Err())
		}
	}

	if g.FailureRate > 0 && rand.Float64() < g.FailureRate {
		return decimal.Zero, ErrUnavailable
	}

	rate, ok := g.rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", ErrInvalidParams, currency)
	}
	return rate, nil
}
