package service

import (
	"context"
	"sync"
	"testing"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/ledger"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/ayo6706/currency-converter/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger(t *testing.T, kv repository.KVStore, balances map[domain.Currency]decimal.Decimal) *ledger.Store {
	t.Helper()
	if kv == nil {
		kv = repository.NewMemoryKV()
	}
	store := ledger.NewStore(kv, zap.NewNop())
	store.InitializeWithBalances(context.Background(), balances)
	return store
}

func exchange(amount string, from domain.Currency, quoted string, to domain.Currency) models.ExchangeOperation {
	return models.ExchangeOperation{
		SourceAmount:        dec(amount),
		SourceCurrency:      from,
		DestinationAmount:   dec(quoted),
		DestinationCurrency: to,
	}
}

// brokenCreditStore refuses every credit to the listed currencies, which is
// the only way to make a compensating deposit fail against a real ledger.
type brokenCreditStore struct {
	*ledger.Store
	broken map[domain.Currency]bool
}

func (s *brokenCreditStore) Update(ctx context.Context, fn func(b ledger.Book) error) error {
	return s.Store.Update(ctx, func(b ledger.Book) error {
		return fn(brokenCreditBook{Book: b, broken: s.broken})
	})
}

type brokenCreditBook struct {
	ledger.Book
	broken map[domain.Currency]bool
}

func (b brokenCreditBook) AdjustBalance(currency domain.Currency, delta decimal.Decimal) error {
	if delta.IsPositive() && b.broken[currency] {
		return ledger.ErrAccountNotFound
	}
	return b.Book.AdjustBalance(currency, delta)
}

type recordingPublisher struct {
	mu       sync.Mutex
	receipts []models.Receipt
	err      error
}

func (p *recordingPublisher) PublishReceipt(ctx context.Context, receipt models.Receipt) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receipts = append(p.receipts, receipt)
	return p.err
}

func (p *recordingPublisher) published() []models.Receipt {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Receipt, len(p.receipts))
	copy(out, p.receipts)
	return out
}
