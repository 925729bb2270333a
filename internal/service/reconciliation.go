package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/ayo6706/currency-converter/internal/observability"
	"github.com/ayo6706/currency-converter/internal/repository"
	"go.uber.org/zap"
)

// Reconciliation checks
const (
	CheckAccountSet       = "account_set"
	CheckNegativeBalance  = "negative_balance"
	CheckCorrupted        = "corrupted"
	CheckPersistedDrift   = "persisted_drift"
	CheckPersistedMissing = "persisted_missing"
)

// ReconciliationReport lists the violated checks of one run.
type ReconciliationReport struct {
	Revision   uint64   `json:"revision"`
	Violations []string `json:"violations"`
	Repaired   bool     `json:"repaired"`
}

func (r *ReconciliationReport) Balanced() bool {
	return len(r.Violations) == 0
}

func (r *ReconciliationReport) add(check string) {
	r.Violations = append(r.Violations, check)
	observability.IncrementLedgerImbalance(check)
}

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store LedgerStore
	kv    repository.KVStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store LedgerStore, kv repository.KVStore) *ReconciliationService {
	return &ReconciliationService{store: store, kv: kv}
}

// Run checks the in-memory ledger and compares it with the durable record.
// A stale durable record is rewritten unless the ledger is corrupted.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconciliationReport, error) {
	snap, check, err := s.compareStable(ctx)
	report := &ReconciliationReport{Revision: snap.Revision, Violations: []string{}}

	seen := make(map[domain.Currency]int, len(snap.Accounts))
	for _, acc := range snap.Accounts {
		seen[acc.Currency]++
		if acc.Amount.IsNegative() {
			report.add(CheckNegativeBalance)
			zap.L().Error("CRITICAL: negative balance detected",
				zap.String("currency", acc.Currency.Code()),
				zap.String("amount", acc.Amount.String()),
			)
		}
	}
	for _, currency := range domain.AllCurrencies() {
		if seen[currency] != 1 {
			report.add(CheckAccountSet)
			zap.L().Error("CRITICAL: account set violated",
				zap.String("currency", currency.Code()),
				zap.Int("accounts", seen[currency]),
			)
		}
	}

	corrupted := s.store.Corrupted()
	if corrupted {
		report.add(CheckCorrupted)
		zap.L().Error("CRITICAL: ledger flagged corrupted, manual reconciliation required")
	}

	if err != nil {
		return report, err
	}
	if check != "" {
		report.add(check)
		if !corrupted {
			s.store.Persist(ctx)
			report.Repaired = true
		}
		zap.L().Warn("persisted ledger differs from memory",
			zap.String("check", check),
			zap.Bool("repaired", report.Repaired),
		)
	}

	if report.Balanced() {
		zap.L().Info("Ledger Balanced", zap.Uint64("revision", snap.Revision))
	}
	return report, nil
}

const maxCompareAttempts = 3

// compareStable compares a snapshot with the durable record, which is read
// outside the ledger lock. Every committed update bumps the revision while it
// persists, so an unchanged revision across the read means the record and the
// snapshot describe the same moment. Otherwise the comparison is retried.
func (s *ReconciliationService) compareStable(ctx context.Context) (models.Snapshot, string, error) {
	snap := s.store.Snapshot()
	for attempt := 1; ; attempt++ {
		check, err := s.comparePersisted(ctx, snap)
		if err != nil {
			return snap, "", err
		}
		latest := s.store.Snapshot()
		if check == "" || latest.Revision == snap.Revision {
			return snap, check, nil
		}
		if attempt == maxCompareAttempts {
			zap.L().Info("ledger kept changing, persisted comparison skipped",
				zap.Uint64("revision", latest.Revision),
			)
			return latest, "", nil
		}
		snap = latest
	}
}

func (s *ReconciliationService) comparePersisted(ctx context.Context, snap models.Snapshot) (string, error) {
	raw, err := s.kv.Get(ctx, domain.AccountsKey)
	if errors.Is(err, repository.ErrNotFound) {
		return CheckPersistedMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("load persisted accounts: %w", err)
	}
	var persisted []models.Account
	if err := json.Unmarshal(raw, &persisted); err != nil || !sameAccounts(persisted, snap.Accounts) {
		return CheckPersistedDrift, nil
	}

	raw, err = s.kv.Get(ctx, domain.TransactionCounterKey)
	if errors.Is(err, repository.ErrNotFound) {
		return CheckPersistedMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("load persisted transaction counter: %w", err)
	}
	counter, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil || counter != snap.TransactionNumber {
		return CheckPersistedDrift, nil
	}
	return "", nil
}

func sameAccounts(a, b []models.Account) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Currency != b[i].Currency || !a[i].Amount.Equal(b[i].Amount) {
			return false
		}
	}
	return true
}
