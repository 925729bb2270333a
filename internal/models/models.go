package models

import (
	"time"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID       string          `json:"id"`
	Currency domain.Currency `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// Snapshot is a consistent view of the ledger. Revision grows with every
// published change so observers can discard stale deliveries.
type Snapshot struct {
	Revision          uint64    `json:"revision"`
	Accounts          []Account `json:"accounts"`
	TransactionNumber uint64    `json:"transaction_number"`
}

// Operation is a financial operation the exchange engine knows how to apply.
// The set of implementations is closed to this package.
type Operation interface {
	Kind() string
	isOperation()
}

// ExchangeOperation moves SourceAmount out of the source currency account and
// DestinationAmount into the destination currency account. A zero
// DestinationAmount means the quote is not known yet.
type ExchangeOperation struct {
	SourceAmount        decimal.Decimal `json:"source_amount"`
	SourceCurrency      domain.Currency `json:"source_currency"`
	DestinationAmount   decimal.Decimal `json:"destination_amount"`
	DestinationCurrency domain.Currency `json:"destination_currency"`
}

func (ExchangeOperation) Kind() string { return domain.OperationExchange }
func (ExchangeOperation) isOperation() {}

// Receipt is issued once per committed operation.
type Receipt struct {
	Operation         Operation       `json:"operation"`
	CommissionFee     decimal.Decimal `json:"commission_fee"`
	TransactionNumber uint64          `json:"transaction_number"`
	Timestamp         time.Time       `json:"timestamp"`
}
