package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in a specific currency.
// Amount is an arbitrary-precision decimal; no binary floating point is involved.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// NewMoney creates a new Money instance.
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}

// Percent returns pct percent of m, e.g. Percent(0.7) of 100 EUR is 0.7 EUR.
func (m Money) Percent(pct decimal.Decimal) Money {
	return Money{
		Amount:   m.Amount.Mul(pct).Div(decimal.NewFromInt(100)),
		Currency: m.Currency,
	}
}

// Convert converts the money to target using both currencies' rates against
// a common base. Multiplying before dividing keeps round trips exact, e.g.
// 144 JPY at 144 per EUR is exactly 1 EUR.
func (m Money) Convert(target Currency, sourceRate, targetRate decimal.Decimal) Money {
	return Money{
		Amount:   m.Amount.Mul(targetRate).Div(sourceRate),
		Currency: target,
	}
}

// CeilString formats m like String but rounds up, so a required amount is
// never shown below what is actually needed.
func (m Money) CeilString() string {
	return fmt.Sprintf("%s %s", m.Amount.RoundCeil(2).StringFixed(2), m.Currency)
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}
