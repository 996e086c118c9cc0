// Package memory is an in-process storage driver. It keeps the same locking and
// atomicity contract as the Postgres driver: row locks with a bounded wait, and
// writes that become visible only when the transaction commits.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// DefaultLockTimeout bounds how long a transaction waits for a row lock.
const DefaultLockTimeout = 5 * time.Second

var (
	errForeignTx = errors.New("memory: transaction was not started by this store")
	errTxDone    = errors.New("memory: transaction already finished")
)

// Store holds committed state and the row locks guarding it.
type Store struct {
	mu sync.RWMutex

	accounts      map[string]*domain.Account
	accountOrder  []string
	ownerAccounts map[string]string

	entries        []*domain.LedgerEntry
	entriesByRef   map[string][]int
	entriesByAcct  map[string][]int
	entriesByXfer  map[string][]int
	transfers      map[string]*domain.Transfer
	transferOrder  []string
	transfersByRef map[string]string
	outbox         map[string]*domain.OutboxEvent
	outboxOrder    []string

	locksMu     sync.Mutex
	locks       map[string]chan struct{}
	lockTimeout time.Duration
}

// NewStore creates an empty store. A non-positive lockTimeout uses DefaultLockTimeout.
func NewStore(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	return &Store{
		accounts:       make(map[string]*domain.Account),
		ownerAccounts:  make(map[string]string),
		entriesByRef:   make(map[string][]int),
		entriesByAcct:  make(map[string][]int),
		entriesByXfer:  make(map[string][]int),
		transfers:      make(map[string]*domain.Transfer),
		transfersByRef: make(map[string]string),
		outbox:         make(map[string]*domain.OutboxEvent),
		locks:          make(map[string]chan struct{}),
		lockTimeout:    lockTimeout,
	}
}

// acquire takes the lock for key, waiting at most lockTimeout. Running out of
// either lockTimeout or the transaction deadline is contention.
func (s *Store) acquire(ctx context.Context, key string) error {
	s.locksMu.Lock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	s.locksMu.Unlock()

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return domain.ErrContention
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ErrContention
		}
		return ctx.Err()
	}
}

func (s *Store) release(key string) {
	s.locksMu.Lock()
	ch := s.locks[key]
	s.locksMu.Unlock()

	<-ch
}

func ownerKey(ownerID, currency string) string {
	return ownerID + "|" + currency
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin starts a new transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Tx{
		store:     m.store,
		held:      make(map[string]bool),
		accounts:  make(map[string]*domain.Account),
		transfers: make(map[string]*domain.Transfer),
	}, nil
}

// Tx stages writes until Commit.
type Tx struct {
	store *Store
	done  bool

	held     map[string]bool
	lockList []string

	accounts    map[string]*domain.Account
	newAccounts []string
	entries     []*domain.LedgerEntry
	transfers   map[string]*domain.Transfer
	newXfers    []string
	outbox      []*domain.OutboxEvent
}

func asTx(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, errForeignTx
	}
	if t.done {
		return nil, errTxDone
	}
	return t, nil
}

// lock takes a row lock held until the transaction ends. Re-locking is a no-op.
func (t *Tx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}

	if err := t.store.acquire(ctx, key); err != nil {
		return err
	}

	t.held[key] = true
	t.lockList = append(t.lockList, key)

	return nil
}

func (t *Tx) releaseAll() {
	for _, key := range t.lockList {
		t.store.release(key)
	}
	t.held = map[string]bool{}
	t.lockList = nil
}

// Commit applies every staged write atomically, re-checking unique constraints
// against writes committed since they were staged.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer t.releaseAll()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.checkUnique(); err != nil {
		return err
	}

	for _, id := range t.newAccounts {
		acc := t.accounts[id]
		s.ownerAccounts[ownerKey(acc.OwnerID, acc.Currency)] = acc.ID
		s.accountOrder = append(s.accountOrder, acc.ID)
	}
	for id, acc := range t.accounts {
		s.accounts[id] = cloneAccount(acc)
	}

	for _, id := range t.newXfers {
		xfer := t.transfers[id]
		s.transfersByRef[xfer.ReferenceID] = xfer.ID
		s.transferOrder = append(s.transferOrder, xfer.ID)
	}
	for id, xfer := range t.transfers {
		s.transfers[id] = cloneTransfer(xfer)
	}

	for _, e := range t.entries {
		idx := len(s.entries)
		s.entries = append(s.entries, cloneEntry(e))
		s.entriesByRef[e.ReferenceID] = append(s.entriesByRef[e.ReferenceID], idx)
		s.entriesByAcct[e.AccountID] = append(s.entriesByAcct[e.AccountID], idx)
		if e.TransferID != "" {
			s.entriesByXfer[e.TransferID] = append(s.entriesByXfer[e.TransferID], idx)
		}
	}

	for _, ev := range t.outbox {
		s.outbox[ev.ID] = cloneEvent(ev)
		s.outboxOrder = append(s.outboxOrder, ev.ID)
	}

	return nil
}

// checkUnique must be called with s.mu held.
func (t *Tx) checkUnique() error {
	s := t.store

	for _, id := range t.newAccounts {
		acc := t.accounts[id]
		if _, ok := s.ownerAccounts[ownerKey(acc.OwnerID, acc.Currency)]; ok {
			return domain.ErrDuplicateAccount
		}
	}

	for _, id := range t.newXfers {
		if s.referenceTakenLocked(t.transfers[id].ReferenceID) {
			return domain.ErrDuplicateReference
		}
	}

	for _, e := range t.entries {
		if s.referenceTakenLocked(e.ReferenceID) {
			return domain.ErrDuplicateReference
		}
	}

	return nil
}

// Rollback discards staged writes. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.releaseAll()

	return nil
}

// referenceTakenLocked reports whether a committed operation already owns
// referenceID. Must be called with s.mu held.
func (s *Store) referenceTakenLocked(referenceID string) bool {
	if len(s.entriesByRef[referenceID]) > 0 {
		return true
	}
	_, ok := s.transfersByRef[referenceID]
	return ok
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func cloneEntry(e *domain.LedgerEntry) *domain.LedgerEntry {
	c := *e
	return &c
}

func cloneTransfer(t *domain.Transfer) *domain.Transfer {
	c := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	if t.OriginalTransferID != nil {
		id := *t.OriginalTransferID
		c.OriginalTransferID = &id
	}
	return &c
}

func cloneEvent(e *domain.OutboxEvent) *domain.OutboxEvent {
	c := *e
	if e.PublishedAt != nil {
		at := *e.PublishedAt
		c.PublishedAt = &at
	}
	return &c
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
