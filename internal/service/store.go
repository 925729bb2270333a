package service

import (
	"context"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/ledger"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/shopspring/decimal"
)

// LedgerStore defines the ledger contract required by services.
type LedgerStore interface {
	Update(ctx context.Context, fn func(b ledger.Book) error) error
	Snapshot() models.Snapshot
	Balance(currency domain.Currency) decimal.Decimal
	Reset(ctx context.Context, balances map[domain.Currency]decimal.Decimal) models.Snapshot
	Persist(ctx context.Context)
	Corrupted() bool
	Subscribe(fn ledger.Observer) func()
}

var _ LedgerStore = (*ledger.Store)(nil)
