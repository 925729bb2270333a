package service

import (
	"context"
	"errors"
	"time"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/events"
	"github.com/ayo6706/currency-converter/internal/ledger"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/ayo6706/currency-converter/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExchangeService is the transaction engine. Every operation runs as one
// ledger update, so the withdrawal and deposit legs of an exchange are never
// observed separately.
type ExchangeService struct {
	store     LedgerStore
	policy    CommissionPolicy
	publisher events.Publisher
	audit     *AuditService
	logger    *zap.Logger
	now       func() time.Time
}

func NewExchangeService(store LedgerStore, policy CommissionPolicy, publisher events.Publisher, audit *AuditService, logger *zap.Logger) *ExchangeService {
	if logger == nil {
		logger = zap.L()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if audit == nil {
		audit = NewAuditService(logger)
	}
	return &ExchangeService{
		store:     store,
		policy:    policy,
		publisher: publisher,
		audit:     audit,
		logger:    logger.Named("exchange"),
		now:       time.Now,
	}
}

// Perform applies op to the ledger and returns its receipt. Failures are
// always *models.ExchangeError; a Fatal one means the ledger lost money and
// needs manual reconciliation.
func (s *ExchangeService) Perform(ctx context.Context, op models.Operation) (*models.Receipt, error) {
	switch o := op.(type) {
	case models.ExchangeOperation:
		return s.performExchange(ctx, o)
	case *models.ExchangeOperation:
		if o != nil {
			return s.performExchange(ctx, *o)
		}
	}
	observability.IncrementExchange(models.UnsupportedOperation.String())
	return nil, &models.ExchangeError{Kind: models.UnsupportedOperation}
}

func (s *ExchangeService) performExchange(ctx context.Context, op models.ExchangeOperation) (*models.Receipt, error) {
	if op.SourceCurrency == op.DestinationCurrency {
		observability.IncrementExchange(models.SameCurrency.String())
		return nil, &models.ExchangeError{Kind: models.SameCurrency}
	}

	var receipt *models.Receipt
	err := s.store.Update(ctx, func(b ledger.Book) error {
		seq := b.TransactionNumber()
		run := newExchangeRun(ctx, s.audit, op.Kind(), seq)
		fee := s.policy.Fee(seq, domain.NewMoney(op.SourceAmount, op.SourceCurrency)).Amount
		debit := op.SourceAmount.Add(fee)

		if cause := checkWithdrawal(b, op.SourceCurrency, debit); cause != nil {
			return &models.ExchangeError{Kind: models.WithdrawalFailed, Cause: cause}
		}
		if err := run.transition(domain.StateWithdrawing, "withdraw", nil); err != nil {
			return err
		}
		if err := b.AdjustBalance(op.SourceCurrency, debit.Neg()); err != nil {
			return &models.ExchangeError{Kind: models.WithdrawalFailed, Cause: &models.AccountError{Kind: models.NoAccount}}
		}

		if err := run.transition(domain.StateDepositing, "deposit", nil); err != nil {
			return err
		}
		if cause := deposit(b, op.DestinationCurrency, op.DestinationAmount); cause != nil {
			return s.rollback(run, b, op.SourceCurrency, debit, cause)
		}

		b.IncrementTransactionNumber()
		if err := run.transition(domain.StateCommitted, "commit", nil); err != nil {
			return err
		}
		receipt = &models.Receipt{
			Operation:         op,
			CommissionFee:     fee,
			TransactionNumber: seq,
			Timestamp:         s.now().UTC(),
		}
		return nil
	})
	if err != nil {
		s.recordFailure(op, err)
		return nil, err
	}

	observability.IncrementExchange("committed")
	observability.AddCommission(op.SourceCurrency.Code(), receipt.CommissionFee.InexactFloat64())
	s.logger.Info("exchange committed",
		zap.Uint64("transaction_number", receipt.TransactionNumber),
		zap.String("source", domain.NewMoney(op.SourceAmount, op.SourceCurrency).String()),
		zap.String("destination", domain.NewMoney(op.DestinationAmount, op.DestinationCurrency).String()),
		zap.String("commission_fee", receipt.CommissionFee.String()),
	)

	if err := s.publisher.PublishReceipt(ctx, *receipt); err != nil {
		s.logger.Warn("publish receipt failed",
			zap.Uint64("transaction_number", receipt.TransactionNumber),
			zap.Error(err),
		)
	}
	return receipt, nil
}

// rollback returns the withdrawn debit to the source account after the
// deposit leg was rejected with cause.
func (s *ExchangeService) rollback(run *exchangeRun, b ledger.Book, source domain.Currency, debit decimal.Decimal, cause *models.AccountError) error {
	if err := run.transition(domain.StateRollingBack, "compensate", cause); err != nil {
		return err
	}
	if failure := deposit(b, source, debit); failure != nil {
		if err := run.transition(domain.StateCorruptedRollbackFailure, "compensate_failed", failure); err != nil {
			return err
		}
		return &models.ExchangeError{Kind: models.RollbackFailed, Cause: failure}
	}
	if err := run.transition(domain.StateRolledBack, "compensated", nil); err != nil {
		return err
	}
	return &models.ExchangeError{Kind: models.DepositFailed, Cause: cause}
}

func (s *ExchangeService) recordFailure(op models.ExchangeOperation, err error) {
	var exErr *models.ExchangeError
	if !errors.As(err, &exErr) {
		observability.IncrementExchange("error")
		s.logger.Error("exchange aborted", zap.Error(err))
		return
	}

	observability.IncrementExchange(exErr.Kind.String())
	fields := []zap.Field{
		zap.String("kind", exErr.Kind.String()),
		zap.String("source", domain.NewMoney(op.SourceAmount, op.SourceCurrency).String()),
		zap.String("destination", domain.NewMoney(op.DestinationAmount, op.DestinationCurrency).String()),
		zap.Error(err),
	}
	if exErr.Fatal() {
		s.logger.Error("CRITICAL: compensating deposit failed, ledger requires manual reconciliation", fields...)
		return
	}
	s.logger.Info("exchange rejected", fields...)
}

func checkWithdrawal(b ledger.Book, currency domain.Currency, amount decimal.Decimal) *models.AccountError {
	if !amount.IsPositive() {
		return &models.AccountError{Kind: models.NothingToExchange}
	}
	balance, err := b.Balance(currency)
	if err != nil {
		return &models.AccountError{Kind: models.NoAccount}
	}
	if balance.Sub(amount).IsNegative() {
		return &models.AccountError{
			Kind:     models.NotEnoughMoney,
			Required: domain.NewMoney(amount, currency).CeilString(),
		}
	}
	return nil
}

// deposit credits amount to currency. Deposits have no upper bound.
func deposit(b ledger.Book, currency domain.Currency, amount decimal.Decimal) *models.AccountError {
	if !amount.IsPositive() {
		return &models.AccountError{Kind: models.NothingToExchange}
	}
	if err := b.AdjustBalance(currency, amount); err != nil {
		return &models.AccountError{Kind: models.NoAccount}
	}
	return nil
}
