package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

func seedAccount(t *testing.T, store *Store, id, owner, currency string) *domain.Account {
	t.Helper()

	ctx := context.Background()
	tx, err := NewTxManager(store).Begin(ctx)
	require.NoError(t, err)

	acc := domain.NewAccount(id, owner, currency, time.Now().UTC())
	require.NoError(t, NewAccountRepository(store).Create(ctx, tx, acc))
	require.NoError(t, tx.Commit(ctx))

	return acc
}

func TestAccountCreateIsUniquePerOwnerAndCurrency(t *testing.T) {
	store := NewStore(time.Second)
	seedAccount(t, store, "acc-1", "owner-1", "USD")

	ctx := context.Background()
	tx, err := NewTxManager(store).Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	repo := NewAccountRepository(store)
	err = repo.Create(ctx, tx, domain.NewAccount("acc-2", "owner-1", "USD", time.Now()))
	assert.ErrorIs(t, err, domain.ErrDuplicateAccount)

	assert.NoError(t, repo.Create(ctx, tx, domain.NewAccount("acc-3", "owner-1", "EUR", time.Now())))
	assert.NoError(t, repo.Create(ctx, tx, domain.NewAccount("acc-4", "owner-2", "USD", time.Now())))
}

func TestStagedWritesInvisibleUntilCommit(t *testing.T) {
	store := NewStore(time.Second)
	seedAccount(t, store, "acc-1", "owner-1", "USD")

	ctx := context.Background()
	accounts := NewAccountRepository(store)

	tx, err := NewTxManager(store).Begin(ctx)
	require.NoError(t, err)

	acc, err := accounts.GetByIDForUpdate(ctx, tx, "acc-1")
	require.NoError(t, err)

	acc.Available = 500
	require.NoError(t, accounts.Update(ctx, tx, acc))

	committed, err := accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), committed.Available)

	inTx, err := accounts.GetByIDForUpdate(ctx, tx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), inTx.Available)

	require.NoError(t, tx.Commit(ctx))

	committed, err = accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), committed.Available)
}

func TestRollbackDiscardsEverything(t *testing.T) {
	store := NewStore(time.Second)
	acc := seedAccount(t, store, "acc-1", "owner-1", "USD")

	ctx := context.Background()
	tx, err := NewTxManager(store).Begin(ctx)
	require.NoError(t, err)

	entries := NewEntryRepository(store)
	entry := domain.NewLedgerEntry("e-1", acc, domain.EntryTypeCredit, 100, "ref-1", domain.BalanceSnapshot{AvailableAfter: 100}, nil, time.Now())
	require.NoError(t, entries.Create(ctx, tx, entry))
	require.NoError(t, NewOutboxRepository(store).Create(ctx, tx, domain.NewBalanceEvent("ev-1", entry)))

	require.NoError(t, tx.Rollback(ctx))

	got, err := entries.GetByReference(ctx, "ref-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	events, err := NewOutboxRepository(store).GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	// The lock is released: a new transaction can take it immediately.
	tx2, err := NewTxManager(store).Begin(ctx)
	require.NoError(t, err)
	_, err = NewAccountRepository(store).GetByIDForUpdate(ctx, tx2, "acc-1")
	assert.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))
}

func TestLockWaitTimesOutWithContention(t *testing.T) {
	store := NewStore(50 * time.Millisecond)
	seedAccount(t, store, "acc-1", "owner-1", "USD")

	ctx := context.Background()
	manager := NewTxManager(store)
	accounts := NewAccountRepository(store)

	holder, err := manager.Begin(ctx)
	require.NoError(t, err)
	defer holder.Rollback(ctx)

	_, err = accounts.GetByIDForUpdate(ctx, holder, "acc-1")
	require.NoError(t, err)

	waiter, err := manager.Begin(ctx)
	require.NoError(t, err)
	defer waiter.Rollback(ctx)

	start := time.Now()
	_, err = accounts.GetByIDForUpdate(ctx, waiter, "acc-1")
	assert.ErrorIs(t, err, domain.ErrContention)
	assert.True(t, domain.IsRetryable(err))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLockWaitEndsAtTransactionDeadline(t *testing.T) {
	store := NewStore(time.Second)
	seedAccount(t, store, "acc-1", "owner-1", "USD")

	ctx := context.Background()
	manager := NewTxManager(store)
	accounts := NewAccountRepository(store)

	holder, err := manager.Begin(ctx)
	require.NoError(t, err)
	defer holder.Rollback(ctx)

	_, err = accounts.GetByIDForUpdate(ctx, holder, "acc-1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	waiter, err := manager.Begin(waitCtx)
	require.NoError(t, err)
	defer waiter.Rollback(ctx)

	_, err = accounts.GetByIDForUpdate(waitCtx, waiter, "acc-1")
	assert.ErrorIs(t, err, domain.ErrContention)
	assert.True(t, domain.IsRetryable(err))

	// Cancellation by the caller is not contention.
	cancelCtx, cancelNow := context.WithCancel(ctx)
	cancelNow()
	_, err = accounts.GetByIDForUpdate(cancelCtx, waiter, "acc-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLockHandoffSeesCommittedBalances(t *testing.T) {
	store := NewStore(time.Second)
	seedAccount(t, store, "acc-1", "owner-1", "USD")

	ctx := context.Background()
	manager := NewTxManager(store)
	accounts := NewAccountRepository(store)

	holder, err := manager.Begin(ctx)
	require.NoError(t, err)
	acc, err := accounts.GetByIDForUpdate(ctx, holder, "acc-1")
	require.NoError(t, err)

	done := make(chan *domain.Account)
	go func() {
		waiter, err := manager.Begin(ctx)
		if err != nil {
			done <- nil
			return
		}
		defer waiter.Rollback(ctx)

		got, err := accounts.GetByIDForUpdate(ctx, waiter, "acc-1")
		if err != nil {
			done <- nil
			return
		}
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)
	acc.Available = 42
	require.NoError(t, accounts.Update(ctx, holder, acc))
	require.NoError(t, holder.Commit(ctx))

	got := <-done
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.Available)
}

func TestEntryReferenceSharedOnlyByTransferLegs(t *testing.T) {
	store := NewStore(time.Second)
	a := seedAccount(t, store, "acc-a", "owner-1", "USD")
	b := seedAccount(t, store, "acc-b", "owner-2", "USD")

	ctx := context.Background()
	entries := NewEntryRepository(store)

	tx, err := NewTxManager(store).Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	leg := func(id string, acc *domain.Account, op domain.EntryType) *domain.LedgerEntry {
		e := domain.NewLedgerEntry(id, acc, op, 5, "ref", domain.BalanceSnapshot{}, nil, time.Now())
		e.TransferID = "t-1"
		return e
	}

	require.NoError(t, entries.Create(ctx, tx, leg("e-1", a, domain.EntryTypeDebit)))
	require.NoError(t, entries.Create(ctx, tx, leg("e-2", b, domain.EntryTypeCredit)))

	err = entries.Create(ctx, tx, leg("e-3", a, domain.EntryTypeCredit))
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)

	err = entries.Create(ctx, tx, domain.NewLedgerEntry("e-4", b, domain.EntryTypeCredit, 5, "ref", domain.BalanceSnapshot{}, nil, time.Now()))
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)

	staged, err := entries.GetByReferenceTx(ctx, tx, "ref")
	require.NoError(t, err)
	assert.Len(t, staged, 2)
}

func TestReferenceClaimedByFirstCommitAcrossAccounts(t *testing.T) {
	store := NewStore(time.Second)
	usd := seedAccount(t, store, "acc-usd", "owner-1", "USD")
	eur := seedAccount(t, store, "acc-eur", "owner-1", "EUR")

	ctx := context.Background()
	manager := NewTxManager(store)
	entries := NewEntryRepository(store)

	first, err := manager.Begin(ctx)
	require.NoError(t, err)
	second, err := manager.Begin(ctx)
	require.NoError(t, err)
	defer second.Rollback(ctx)

	require.NoError(t, entries.Create(ctx, first, domain.NewLedgerEntry("e-1", usd, domain.EntryTypeCredit, 10, "shared-ref", domain.BalanceSnapshot{}, nil, time.Now())))
	require.NoError(t, entries.Create(ctx, second, domain.NewLedgerEntry("e-2", eur, domain.EntryTypeCredit, 10, "shared-ref", domain.BalanceSnapshot{}, nil, time.Now())))

	require.NoError(t, first.Commit(ctx))
	assert.ErrorIs(t, second.Commit(ctx), domain.ErrDuplicateReference)

	recorded, err := entries.GetByReference(ctx, "shared-ref")
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "e-1", recorded[0].ID)

	third, err := manager.Begin(ctx)
	require.NoError(t, err)
	defer third.Rollback(ctx)

	err = entries.Create(ctx, third, domain.NewLedgerEntry("e-3", eur, domain.EntryTypeCredit, 10, "shared-ref", domain.BalanceSnapshot{}, nil, time.Now()))
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
}

func TestTransferRejectsReferenceOfEntry(t *testing.T) {
	store := NewStore(time.Second)
	acc := seedAccount(t, store, "acc-1", "owner-1", "USD")

	ctx := context.Background()
	manager := NewTxManager(store)

	tx, err := manager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, NewEntryRepository(store).Create(ctx, tx, domain.NewLedgerEntry("e-1", acc, domain.EntryTypeCredit, 10, "dep-1", domain.BalanceSnapshot{}, nil, time.Now())))
	require.NoError(t, tx.Commit(ctx))

	tx, err = manager.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	err = NewTransferRepository(store).Create(ctx, tx, &domain.Transfer{
		ID:          "t-1",
		ReferenceID: "dep-1",
		Status:      domain.TransferStatusPending,
		CreatedAt:   time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
}

func TestReferenceExistsCoversTransfers(t *testing.T) {
	store := NewStore(time.Second)
	ctx := context.Background()

	tx, err := NewTxManager(store).Begin(ctx)
	require.NoError(t, err)

	transfers := NewTransferRepository(store)
	require.NoError(t, transfers.Create(ctx, tx, &domain.Transfer{
		ID:          "t-1",
		ReferenceID: "ref-t",
		Status:      domain.TransferStatusPending,
		CreatedAt:   time.Now(),
	}))
	require.NoError(t, tx.Commit(ctx))

	exists, err := NewEntryRepository(store).ReferenceExists(ctx, "ref-t")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = NewEntryRepository(store).ReferenceExists(ctx, "ref-unknown")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOutboxLifecycle(t *testing.T) {
	store := NewStore(time.Second)
	acc := seedAccount(t, store, "acc-1", "owner-1", "USD")

	ctx := context.Background()
	outbox := NewOutboxRepository(store)

	tx, err := NewTxManager(store).Begin(ctx)
	require.NoError(t, err)
	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		require.NoError(t, outbox.Create(ctx, tx, domain.NewAccountEvent(id, domain.EventTypeAccountCreated, acc, time.Now())))
	}
	require.NoError(t, tx.Commit(ctx))

	events, err := outbox.GetUnpublished(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-1", events[0].ID)

	published := time.Now().Add(-time.Hour)
	require.NoError(t, outbox.MarkPublished(ctx, "ev-1", published))

	events, err = outbox.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	require.NoError(t, outbox.DeletePublished(ctx, time.Now()))
	events, err = outbox.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestForeignTransactionRejected(t *testing.T) {
	store := NewStore(time.Second)

	var tx usecase.Transaction = foreignTx{}
	err := NewAccountRepository(store).Create(context.Background(), tx, domain.NewAccount("a", "o", "USD", time.Now()))
	assert.ErrorIs(t, err, errForeignTx)
}

type foreignTx struct{}

func (foreignTx) Commit(context.Context) error   { return nil }
func (foreignTx) Rollback(context.Context) error { return nil }
