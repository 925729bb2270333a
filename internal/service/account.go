package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/ledger"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/shopspring/decimal"
)

type AccountService struct {
	store LedgerStore
}

func NewAccountService(store LedgerStore) *AccountService {
	return &AccountService{
		store: store,
	}
}

func (s *AccountService) Snapshot() models.Snapshot {
	return s.store.Snapshot()
}

// GetAccount returns the account held in currency.
func (s *AccountService) GetAccount(currency domain.Currency) (*models.Account, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, currency)
	}
	for _, acc := range s.store.Snapshot().Accounts {
		if acc.Currency == currency {
			return &acc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, currency)
}

// ResetUserData restores the default demo balances and restarts the free
// transaction allowance.
func (s *AccountService) ResetUserData(ctx context.Context) models.Snapshot {
	return s.store.Reset(ctx, domain.DefaultBalances())
}

// Subscribe calls fn with the current accounts now and after every change.
func (s *AccountService) Subscribe(fn ledger.Observer) func() {
	return s.store.Subscribe(fn)
}

// Balance returns the amount held in currency. Unsupported currencies are an
// error rather than the ledger panic a missing account would cause.
func (s *AccountService) Balance(currency domain.Currency) (decimal.Decimal, error) {
	if !currency.Valid() {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, currency)
	}
	return s.store.Balance(currency), nil
}

// Corrupted reports whether a failed rollback left the ledger inconsistent.
func (s *AccountService) Corrupted() bool {
	return s.store.Corrupted()
}
