package models

import (
	"errors"
	"fmt"
)

var (
	ErrNothingToExchange = errors.New("nothing to exchange")
	ErrNoAccount         = errors.New("account does not exist")
	ErrNotEnoughMoney    = errors.New("not enough money")

	ErrSameCurrency         = errors.New("nothing to exchange, the same currency")
	ErrWithdrawalFailed     = errors.New("withdrawal failed")
	ErrDepositFailed        = errors.New("deposit failed")
	ErrRollbackFailed       = errors.New("withdrawal return failed")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// AccountErrorKind classifies why a single leg could not be applied.
type AccountErrorKind int

const (
	NothingToExchange AccountErrorKind = iota + 1
	NoAccount
	NotEnoughMoney
)

// AccountError is the reason a withdrawal or deposit leg was rejected.
type AccountError struct {
	Kind AccountErrorKind
	// Required is set for NotEnoughMoney: sum plus commission fee, e.g. "1007.00 EUR".
	Required string
}

func (e *AccountError) Error() string {
	switch e.Kind {
	case NotEnoughMoney:
		return fmt.Sprintf("%s: sum + commission fee = %s", ErrNotEnoughMoney, e.Required)
	default:
		return e.sentinel().Error()
	}
}

func (e *AccountError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *AccountError) sentinel() error {
	switch e.Kind {
	case NothingToExchange:
		return ErrNothingToExchange
	case NoAccount:
		return ErrNoAccount
	case NotEnoughMoney:
		return ErrNotEnoughMoney
	default:
		return errors.New("unknown account error")
	}
}

// ExchangeErrorKind classifies the outcome of a failed exchange.
type ExchangeErrorKind int

const (
	SameCurrency ExchangeErrorKind = iota + 1
	WithdrawalFailed
	DepositFailed
	RollbackFailed
	UnsupportedOperation
)

func (k ExchangeErrorKind) String() string {
	switch k {
	case SameCurrency:
		return "same_currency"
	case WithdrawalFailed:
		return "withdrawal_failed"
	case DepositFailed:
		return "deposit_failed"
	case RollbackFailed:
		return "rollback_failed"
	case UnsupportedOperation:
		return "unsupported_operation"
	default:
		return "unknown"
	}
}

// ExchangeError is returned by the exchange engine for every failed operation.
// Cause is set for the leg failures.
type ExchangeError struct {
	Kind  ExchangeErrorKind
	Cause *AccountError
}

func (e *ExchangeError) Error() string {
	msg := e.sentinel().Error()
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ExchangeError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *ExchangeError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Fatal reports whether the ledger may have lost money. Only a failed
// compensating deposit is fatal; the caller must not retry it.
func (e *ExchangeError) Fatal() bool {
	return e.Kind == RollbackFailed
}

func (e *ExchangeError) sentinel() error {
	switch e.Kind {
	case SameCurrency:
		return ErrSameCurrency
	case WithdrawalFailed:
		return ErrWithdrawalFailed
	case DepositFailed:
		return ErrDepositFailed
	case RollbackFailed:
		return ErrRollbackFailed
	case UnsupportedOperation:
		return ErrUnsupportedOperation
	default:
		return errors.New("unknown exchange error")
	}
}
