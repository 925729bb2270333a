package service

import (
	"context"
	"sync"
	"testing"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/ayo6706/currency-converter/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReconciliationRun(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKV()
	store := newTestLedger(t, kv, startingBalances())
	engine := NewExchangeService(store, DefaultCommissionPolicy(), nil, nil, zap.NewNop())
	_, err := engine.Perform(ctx, exchange("100", domain.EUR, "109", domain.USD))
	require.NoError(t, err)

	reconcileSvc := NewReconciliationService(store, kv)
	report, err := reconcileSvc.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced())
	assert.Empty(t, report.Violations)
	assert.False(t, report.Repaired)
}

func TestReconciliationRepairsStaleRecord(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKV()
	store := newTestLedger(t, kv, startingBalances())
	reconcileSvc := NewReconciliationService(store, kv)

	require.NoError(t, kv.Set(ctx, domain.TransactionCounterKey, []byte("41")))
	report, err := reconcileSvc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{CheckPersistedDrift}, report.Violations)
	assert.True(t, report.Repaired)

	raw, err := kv.Get(ctx, domain.TransactionCounterKey)
	require.NoError(t, err)
	assert.Equal(t, "0", string(raw))

	require.NoError(t, kv.Set(ctx, domain.AccountsKey, []byte("not json")))
	report, err = reconcileSvc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{CheckPersistedDrift}, report.Violations)

	report, err = reconcileSvc.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced())
}

func TestReconciliationReportsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKV()
	store := newTestLedger(t, kv, map[domain.Currency]decimal.Decimal{domain.GBP: dec("-5")})

	report, err := NewReconciliationService(store, kv).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{CheckNegativeBalance}, report.Violations)
}

func TestReconciliationLeavesCorruptedLedgerAlone(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKV()
	inner := newTestLedger(t, kv, startingBalances())
	store := &brokenCreditStore{Store: inner, broken: map[domain.Currency]bool{domain.EUR: true}}
	engine := NewExchangeService(store, DefaultCommissionPolicy(), nil, nil, zap.NewNop())

	_, err := engine.Perform(ctx, exchange("100", domain.EUR, "0", domain.USD))
	require.ErrorIs(t, err, models.ErrRollbackFailed)

	report, err := NewReconciliationService(inner, kv).Run(ctx)
	require.NoError(t, err)
	assert.Contains(t, report.Violations, CheckCorrupted)
	assert.Contains(t, report.Violations, CheckPersistedDrift)
	assert.False(t, report.Repaired)

	inner.Reset(ctx, domain.DefaultBalances())
	report, err = NewReconciliationService(inner, kv).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced())
}

// commitDuringReadKV runs commit the first time the accounts record is read,
// as if an exchange landed between the snapshot and the read.
type commitDuringReadKV struct {
	repository.KVStore
	once   sync.Once
	commit func()
}

func (k *commitDuringReadKV) Get(ctx context.Context, key string) ([]byte, error) {
	if key == domain.AccountsKey {
		k.once.Do(k.commit)
	}
	return k.KVStore.Get(ctx, key)
}

func TestReconciliationIgnoresCommitDuringComparison(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKV()
	store := newTestLedger(t, kv, startingBalances())
	engine := NewExchangeService(store, DefaultCommissionPolicy(), nil, nil, zap.NewNop())
	before := store.Snapshot().Revision

	racing := &commitDuringReadKV{KVStore: kv, commit: func() {
		_, err := engine.Perform(ctx, exchange("100", domain.EUR, "109", domain.USD))
		require.NoError(t, err)
	}}

	report, err := NewReconciliationService(store, racing).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced(), "violations: %v", report.Violations)
	assert.False(t, report.Repaired)
	assert.Greater(t, report.Revision, before)
	assert.Equal(t, store.Snapshot().Revision, report.Revision)
}
