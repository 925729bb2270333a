package ledger

import (
	"errors"
	"fmt"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/shopspring/decimal"
)

var ErrAccountNotFound = errors.New("account not found")

// Book is the mutable view of the ledger handed to Store.Update callbacks.
type Book interface {
	Balance(currency domain.Currency) (decimal.Decimal, error)
	AdjustBalance(currency domain.Currency, delta decimal.Decimal) error
	TransactionNumber() uint64
	IncrementTransactionNumber()
}

// Ledger is the account set plus the exchange transaction counter.
// It is a plain data holder: it never rejects a negative balance, that check
// belongs to whoever drives it. Only reachable through Store.Update.
type Ledger struct {
	accounts []models.Account
	counter  uint64
}

var _ Book = (*Ledger)(nil)

func (l *Ledger) index(currency domain.Currency) int {
	for i := range l.accounts {
		if l.accounts[i].Currency == currency {
			return i
		}
	}
	return -1
}

// Balance returns the amount held for currency.
func (l *Ledger) Balance(currency domain.Currency) (decimal.Decimal, error) {
	i := l.index(currency)
	if i < 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAccountNotFound, currency)
	}
	return l.accounts[i].Amount, nil
}

// AdjustBalance applies delta (credit when positive, debit when negative)
// to the currency's account in memory only.
func (l *Ledger) AdjustBalance(currency domain.Currency, delta decimal.Decimal) error {
	i := l.index(currency)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, currency)
	}
	l.accounts[i].Amount = l.accounts[i].Amount.Add(delta)
	return nil
}

// TransactionNumber is the number the next committed operation will carry.
func (l *Ledger) TransactionNumber() uint64 {
	return l.counter
}

func (l *Ledger) IncrementTransactionNumber() {
	l.counter++
}

func (l *Ledger) copyAccounts() []models.Account {
	out := make([]models.Account, len(l.accounts))
	copy(out, l.accounts)
	return out
}

func (l *Ledger) clone() Ledger {
	return Ledger{accounts: l.copyAccounts(), counter: l.counter}
}

func (l *Ledger) sameState(other *Ledger) bool {
	if l.counter != other.counter || len(l.accounts) != len(other.accounts) {
		return false
	}
	for i := range l.accounts {
		a, b := l.accounts[i], other.accounts[i]
		if a.ID != b.ID || a.Currency != b.Currency || !a.Amount.Equal(b.Amount) {
			return false
		}
	}
	return true
}
