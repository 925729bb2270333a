package domain

import "github.com/shopspring/decimal"

// Commission defaults
const (
	FreeTransactionThreshold uint64 = 5
	CommissionPercentText           = "0.7"
)

// Persistence keys (must stay stable across releases)
const (
	AccountsKey           = "AccountsManagerUserAccounts"
	TransactionCounterKey = "AccountsManagerExchangeTransactionCounter"
)

// Exchange engine states
const (
	StateValidating               = "VALIDATING"
	StateWithdrawing              = "WITHDRAWING"
	StateDepositing               = "DEPOSITING"
	StateCommitted                = "COMMITTED"
	StateRollingBack              = "ROLLING_BACK"
	StateRolledBack               = "ROLLED_BACK"
	StateCorruptedRollbackFailure = "CORRUPTED_ROLLBACK_FAILURE"
)

// Operation kinds
const (
	OperationExchange = "exchange_currency"
)

// CommissionPercent returns the default commission charged once the free
// transactions are used up.
func CommissionPercent() decimal.Decimal {
	return decimal.RequireFromString(CommissionPercentText)
}

// DefaultBalances is the starting balance set applied on a user data reset.
func DefaultBalances() map[Currency]decimal.Decimal {
	return map[Currency]decimal.Decimal{
		EUR: decimal.NewFromInt(10_000),
		USD: decimal.NewFromInt(500),
	}
}
