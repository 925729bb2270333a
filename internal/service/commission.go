package service

import (
	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/shopspring/decimal"
)

// CommissionPolicy charges nothing for the first FreeTransactions operations
// of a ledger and Percent percent of the source amount afterwards. The fee is
// always in the source currency.
type CommissionPolicy struct {
	FreeTransactions uint64
	Percent          decimal.Decimal
}

func DefaultCommissionPolicy() CommissionPolicy {
	return CommissionPolicy{
		FreeTransactions: domain.FreeTransactionThreshold,
		Percent:          domain.CommissionPercent(),
	}
}

// Fee returns the commission on source when the ledger counter is at
// transactionNumber.
func (p CommissionPolicy) Fee(transactionNumber uint64, source domain.Money) domain.Money {
	if transactionNumber < p.FreeTransactions {
		return domain.NewMoney(decimal.Zero, source.Currency)
	}
	return source.Percent(p.Percent)
}
