package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/ayo6706/currency-converter/internal/observability"
	"github.com/ayo6706/currency-converter/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Observer receives a snapshot after every published ledger change.
// Deliveries to one observer are serialized and revisions only increase; a
// snapshot overtaken by a newer one is never delivered. Observers may read
// the store but must not call Subscribe, Update or Reset.
type Observer func(models.Snapshot)

type subscriber struct {
	fn   Observer
	last uint64
}

// Store owns the ledger and its persistence. All mutations go through Update,
// Initialize, InitializeWithBalances or Reset; readers always see either the
// state before or after an update, never one in between.
type Store struct {
	mu        sync.RWMutex
	ledger    Ledger
	revision  uint64
	corrupted bool
	kv        repository.KVStore
	logger    *zap.Logger

	deliverMu sync.Mutex
	obsMu     sync.Mutex
	observers map[uint64]*subscriber
	nextObsID uint64
}

func NewStore(kv repository.KVStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.L()
	}
	return &Store{
		kv:        kv,
		logger:    logger.Named("ledger"),
		observers: make(map[uint64]*subscriber),
	}
}

// Initialize optionally loads the persisted ledger and then makes sure every
// supported currency has an account, persisting after each one it creates.
func (s *Store) Initialize(ctx context.Context, loadPersisted bool) {
	s.mu.Lock()
	s.ledger = Ledger{}
	s.corrupted = false
	if loadPersisted {
		s.loadLocked(ctx)
	}
	for _, currency := range domain.AllCurrencies() {
		if s.ledger.index(currency) >= 0 {
			continue
		}
		s.ledger.accounts = append(s.ledger.accounts, newAccount(currency, decimal.Zero))
		s.persistLocked(ctx)
	}
	snap := s.publishLocked()
	s.mu.Unlock()

	s.logger.Info("ledger initialized",
		zap.Bool("loaded", loadPersisted),
		zap.Uint64("transaction_number", snap.TransactionNumber),
	)
	s.notify(snap)
}

// InitializeWithBalances replaces the ledger with one fresh account per
// currency, seeded from balances (zero when absent), and persists it.
func (s *Store) InitializeWithBalances(ctx context.Context, balances map[domain.Currency]decimal.Decimal) {
	s.replace(ctx, balances)
}

// Reset restores a fixed starting balance set with new account ids and a
// zeroed transaction counter. It returns the state right after the reset,
// before any later update can run.
func (s *Store) Reset(ctx context.Context, balances map[domain.Currency]decimal.Decimal) models.Snapshot {
	snap := s.replace(ctx, balances)
	s.logger.Info("ledger reset", zap.Uint64("revision", snap.Revision))
	return snap
}

func (s *Store) replace(ctx context.Context, balances map[domain.Currency]decimal.Decimal) models.Snapshot {
	currencies := domain.AllCurrencies()
	accounts := make([]models.Account, 0, len(currencies))
	for _, currency := range currencies {
		amount, ok := balances[currency]
		if !ok {
			amount = decimal.Zero
		}
		accounts = append(accounts, newAccount(currency, amount))
	}

	s.mu.Lock()
	s.ledger = Ledger{accounts: accounts}
	s.corrupted = false
	s.persistLocked(ctx)
	snap := s.publishLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// Balance returns the current amount for currency. A missing account means
// the one-account-per-currency invariant was broken, which is a programming
// error.
func (s *Store) Balance(currency domain.Currency) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amount, err := s.ledger.Balance(currency)
	if err != nil {
		panic(fmt.Sprintf("ledger invariant violated: %v", err))
	}
	return amount
}

func (s *Store) Accounts() []models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.copyAccounts()
}

func (s *Store) TransactionNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.TransactionNumber()
}

func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Corrupted reports whether a failed update left the in-memory ledger
// different from its last committed state. Cleared by Reset.
func (s *Store) Corrupted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corrupted
}

// Update runs fn with exclusive access to the ledger. When fn succeeds the
// new state is persisted and published. When fn fails nothing is persisted;
// if fn had already changed the state the store is flagged corrupted and the
// change is still published so readers see what memory actually holds.
func (s *Store) Update(ctx context.Context, fn func(b Book) error) error {
	s.mu.Lock()
	before := s.ledger.clone()
	if err := fn(&s.ledger); err != nil {
		if s.ledger.sameState(&before) {
			s.mu.Unlock()
			return err
		}
		s.corrupted = true
		snap := s.publishLocked()
		s.mu.Unlock()

		s.logger.Error("ledger left inconsistent by failed update", zap.Error(err))
		s.notify(snap)
		return err
	}
	s.persistLocked(ctx)
	snap := s.publishLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Persist writes the ledger to durable storage. Failures are logged and
// counted, never returned.
func (s *Store) Persist(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.persistLocked(ctx)
}

// Subscribe registers fn and immediately delivers the current snapshot.
// The returned function removes the observer.
func (s *Store) Subscribe(fn Observer) func() {
	s.deliverMu.Lock()
	snap := s.Snapshot()
	sub := &subscriber{fn: fn, last: snap.Revision}

	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = sub
	s.obsMu.Unlock()

	fn(snap)
	s.deliverMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// notify runs after the ledger lock is released, so two updates can race to
// get here. Whichever arrives second with an older revision is dropped.
func (s *Store) notify(snap models.Snapshot) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.obsMu.Lock()
	subs := make([]*subscriber, 0, len(s.observers))
	for _, sub := range s.observers {
		subs = append(subs, sub)
	}
	s.obsMu.Unlock()

	for _, sub := range subs {
		if snap.Revision <= sub.last {
			continue
		}
		sub.last = snap.Revision
		sub.fn(snap)
	}
}

func (s *Store) publishLocked() models.Snapshot {
	s.revision++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() models.Snapshot {
	return models.Snapshot{
		Revision:          s.revision,
		Accounts:          s.ledger.copyAccounts(),
		TransactionNumber: s.ledger.counter,
	}
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.corrupted {
		s.logger.Error("refusing to persist a corrupted ledger")
		observability.IncrementPersistFailure("corrupted")
		return
	}

	payload, err := json.Marshal(s.ledger.accounts)
	if err != nil {
		s.logger.Warn("encode accounts failed", zap.Error(err))
		observability.IncrementPersistFailure("accounts")
	} else if err := s.kv.Set(ctx, domain.AccountsKey, payload); err != nil {
		s.logger.Warn("persist accounts failed", zap.Error(err))
		observability.IncrementPersistFailure("accounts")
	}

	counter := strconv.FormatUint(s.ledger.counter, 10)
	if err := s.kv.Set(ctx, domain.TransactionCounterKey, []byte(counter)); err != nil {
		s.logger.Warn("persist transaction counter failed", zap.Error(err))
		observability.IncrementPersistFailure("counter")
	}
}

// loadLocked restores what it can. Accounts and counter are independent: an
// unreadable record falls back to an empty account set or counter 0.
func (s *Store) loadLocked(ctx context.Context) {
	raw, err := s.kv.Get(ctx, domain.AccountsKey)
	switch {
	case err == nil:
		var accounts []models.Account
		if err := json.Unmarshal(raw, &accounts); err != nil {
			s.logger.Warn("decode persisted accounts failed, starting empty", zap.Error(err))
		} else {
			s.ledger.accounts = uniqueByCurrency(accounts)
		}
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Debug("no persisted accounts")
	default:
		s.logger.Warn("load persisted accounts failed, starting empty", zap.Error(err))
	}

	raw, err = s.kv.Get(ctx, domain.TransactionCounterKey)
	switch {
	case err == nil:
		counter, parseErr := strconv.ParseUint(string(raw), 10, 64)
		if parseErr != nil {
			s.logger.Warn("decode persisted transaction counter failed", zap.Error(parseErr))
			return
		}
		s.ledger.counter = counter
	case errors.Is(err, repository.ErrNotFound):
	default:
		s.logger.Warn("load persisted transaction counter failed", zap.Error(err))
	}
}

func uniqueByCurrency(accounts []models.Account) []models.Account {
	seen := make(map[domain.Currency]struct{}, len(accounts))
	out := make([]models.Account, 0, len(accounts))
	for _, acc := range accounts {
		if _, dup := seen[acc.Currency]; dup {
			continue
		}
		seen[acc.Currency] = struct{}{}
		out = append(out, acc)
	}
	return out
}

func newAccount(currency domain.Currency, amount decimal.Decimal) models.Account {
	return models.Account{
		ID:       uuid.NewString(),
		Currency: currency,
		Amount:   amount,
	}
}
