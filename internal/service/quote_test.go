package service

import (
	"context"
	"testing"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQuoteService(t *testing.T) {
	svc := NewQuoteService(gateway.NewMockRateProvider())
	ctx := context.Background()

	q, err := svc.Quote(ctx, dec("100"), domain.EUR, domain.USD)
	require.NoError(t, err)
	assert.True(t, dec("109").Equal(q.Operation.DestinationAmount))
	assert.True(t, dec("1.09").Equal(q.Rate))
	assert.Equal(t, domain.EUR, q.Operation.SourceCurrency)
	assert.Equal(t, domain.USD, q.Operation.DestinationCurrency)

	q, err = svc.Quote(ctx, dec("144"), domain.JPY, domain.EUR)
	require.NoError(t, err)
	assert.True(t, dec("1").Equal(q.Operation.DestinationAmount))

	q, err = svc.Quote(ctx, dec("87"), domain.GBP, domain.USD)
	require.NoError(t, err)
	assert.True(t, dec("109").Equal(q.Operation.DestinationAmount), "got %s", q.Operation.DestinationAmount)
}

func TestQuoteServiceRejectsBadInput(t *testing.T) {
	svc := NewQuoteService(gateway.NewMockRateProvider())
	ctx := context.Background()

	for _, amount := range []string{"0", "-1"} {
		_, err := svc.Quote(ctx, dec(amount), domain.EUR, domain.USD)
		assert.ErrorIs(t, err, gateway.ErrInvalidParams)
	}

	_, err := svc.Quote(ctx, dec("1"), domain.Currency("CHF"), domain.USD)
	assert.ErrorIs(t, err, gateway.ErrInvalidParams)
}

func TestQuoteFeedsEngine(t *testing.T) {
	store := newTestLedger(t, nil, startingBalances())
	engine := NewExchangeService(store, DefaultCommissionPolicy(), nil, nil, zap.NewNop())
	quotes := NewQuoteService(gateway.NewMockRateProvider())

	q, err := quotes.Quote(context.Background(), dec("50"), domain.EUR, domain.GBP)
	require.NoError(t, err)
	_, err = engine.Perform(context.Background(), q.Operation)
	require.NoError(t, err)
	assert.True(t, dec("43.5").Equal(store.Balance(domain.GBP)))
}
