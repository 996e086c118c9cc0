package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/walletledger/internal/domain"
)

var (
	accountCols  = []string{"id", "owner_id", "currency", "status", "available", "pending", "created_at", "updated_at"}
	entryCols    = []string{"id", "account_id", "owner_id", "transfer_id", "reference_id", "type", "status", "amount", "currency", "available_before", "available_after", "pending_before", "pending_after", "metadata", "created_at"}
	transferCols = []string{"id", "from_account_id", "to_account_id", "amount", "currency", "status", "reference_id", "created_by", "original_transfer_id", "metadata", "created_at", "completed_at"}
	outboxCols   = []string{"id", "aggregate_id", "aggregate_type", "event_type", "payload", "created_at", "published", "published_at"}
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quoted(s string) string { return regexp.QuoteMeta(s) }

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate account", &pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintAccountOwnerCurrency}, domain.ErrDuplicateAccount},
		{"duplicate entry reference", &pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintEntryReference}, domain.ErrDuplicateReference},
		{"duplicate transfer reference", &pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintTransferReference}, domain.ErrDuplicateReference},
		{"reference claimed by another operation", &pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintReservedReference}, domain.ErrDuplicateReference},
		{"second reversal", &pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintSingleReversal}, domain.ErrTransferAlreadyReversed},
		{"lock timeout", &pgconn.PgError{Code: pgErrLockNotAvailable}, domain.ErrContention},
		{"deadlock", &pgconn.PgError{Code: pgErrDeadlock}, domain.ErrContention},
		{"serialization", &pgconn.PgError{Code: pgErrSerializationFailure}, domain.ErrContention},
		{"transaction deadline", fmt.Errorf("timeout: %w", context.DeadlineExceeded), domain.ErrContention},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	t.Run("passes through other errors", func(t *testing.T) {
		plain := errors.New("connection reset")
		assert.Same(t, plain, mapError(plain))
		assert.NoError(t, mapError(nil))
	})
}

func TestAccountRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newAccountRepository(mock)
	acc := domain.NewAccount("acc-1", "alice", "USD", fixedNow)

	mock.ExpectExec(quoted(insertAccountSQL)).
		WithArgs("acc-1", "alice", "USD", "ACTIVE", int64(0), int64(0), fixedNow, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), tx, acc))
	assertExpectations(t, mock)
}

func TestAccountRepository_CreateDuplicate(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newAccountRepository(mock)

	mock.ExpectExec(quoted(insertAccountSQL)).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintAccountOwnerCurrency})

	err := repo.Create(context.Background(), tx, domain.NewAccount("acc-2", "alice", "USD", fixedNow))
	assert.ErrorIs(t, err, domain.ErrDuplicateAccount)
}

func TestAccountRepository_GetByID(t *testing.T) {
	mock := newMockPool(t)
	repo := newAccountRepository(mock)

	mock.ExpectQuery(quoted(selectAccountSQL)).
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow("acc-1", "alice", "USD", "DISABLED", int64(700), int64(300), fixedNow, fixedNow))

	acc, err := repo.GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusDisabled, acc.Status)
	assert.Equal(t, int64(700), acc.Available)
	assert.Equal(t, int64(300), acc.Pending)
	assert.Equal(t, "alice", acc.OwnerID)
}

func TestAccountRepository_GetByIDNotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := newAccountRepository(mock)

	mock.ExpectQuery(quoted(selectAccountSQL)).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountRepository_GetByIDForUpdateContention(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newAccountRepository(mock)

	mock.ExpectQuery(quoted(selectAccountForUpdateSQL)).
		WithArgs("acc-1").
		WillReturnError(&pgconn.PgError{Code: pgErrLockNotAvailable})

	_, err := repo.GetByIDForUpdate(context.Background(), tx, "acc-1")
	assert.ErrorIs(t, err, domain.ErrContention)
	assert.Equal(t, domain.KindContention, domain.KindOf(err))
}

func TestAccountRepository_GetByIDForUpdateDeadline(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newAccountRepository(mock)

	mock.ExpectQuery(quoted(selectAccountForUpdateSQL)).
		WithArgs("acc-1").
		WillReturnError(fmt.Errorf("timeout: %w", context.DeadlineExceeded))

	_, err := repo.GetByIDForUpdate(context.Background(), tx, "acc-1")
	assert.ErrorIs(t, err, domain.ErrContention)
	assert.True(t, domain.IsRetryable(err))
}

func TestAccountRepository_GetByIDsForUpdate(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newAccountRepository(mock)
	ids := []string{"acc-1", "acc-2"}

	mock.ExpectQuery(quoted(selectAccountsForUpdateSQL)).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow("acc-1", "alice", "USD", "ACTIVE", int64(10), int64(0), fixedNow, fixedNow).
			AddRow("acc-2", "bob", "USD", "ACTIVE", int64(20), int64(0), fixedNow, fixedNow))

	accounts, err := repo.GetByIDsForUpdate(context.Background(), tx, ids)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "acc-1", accounts[0].ID)
	assert.Equal(t, "acc-2", accounts[1].ID)
}

func TestAccountRepository_UpdateMissingRow(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newAccountRepository(mock)
	acc := domain.NewAccount("gone", "alice", "USD", fixedNow)

	mock.ExpectExec(quoted(updateAccountSQL)).
		WithArgs("gone", "ACTIVE", int64(0), int64(0), fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.Update(context.Background(), tx, acc), domain.ErrAccountNotFound)
}

func TestAccountRepository_ListByOwner(t *testing.T) {
	mock := newMockPool(t)
	repo := newAccountRepository(mock)

	mock.ExpectQuery(quoted(listAccountsByOwnerSQL)).
		WithArgs("alice", 10, 0).
		WillReturnRows(pgxmock.NewRows(accountCols).
			AddRow("acc-1", "alice", "USD", "ACTIVE", int64(1), int64(0), fixedNow, fixedNow))

	accounts, err := repo.ListByOwner(context.Background(), "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "USD", accounts[0].Currency)
}

func TestEntryRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newEntryRepository(mock)

	acc := domain.NewAccount("acc-1", "alice", "USD", fixedNow)
	snap, err := acc.Apply(domain.EntryTypeCredit, 500)
	require.NoError(t, err)
	entry := domain.NewLedgerEntry("ent-1", acc, domain.EntryTypeCredit, 500, "ref-1", snap, map[string]any{"action": "CREDIT"}, fixedNow)

	mock.ExpectExec(quoted(reserveReferenceSQL)).
		WithArgs("ref-1", (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(quoted(insertEntrySQL)).
		WithArgs("ent-1", "acc-1", "alice", (*string)(nil), "ref-1", "CREDIT", "CONFIRMED", int64(500), "USD",
			int64(0), int64(500), int64(0), int64(0), []byte(`{"action":"CREDIT"}`), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), tx, entry))
	assertExpectations(t, mock)
}

func TestEntryRepository_CreateDuplicateReference(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newEntryRepository(mock)

	transferID := "xfer-1"
	mock.ExpectExec(quoted(insertEntrySQL)).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintEntryReference})

	err := repo.Create(context.Background(), tx, &domain.LedgerEntry{ID: "ent-2", TransferID: transferID, Type: domain.EntryTypeDebit})
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
}

func TestEntryRepository_CreateReferenceClaimedElsewhere(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newEntryRepository(mock)

	// The same reference already names an entry on another account.
	mock.ExpectExec(quoted(reserveReferenceSQL)).
		WithArgs("shared-ref", (*string)(nil)).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintReservedReference})

	err := repo.Create(context.Background(), tx, &domain.LedgerEntry{
		ID: "ent-3", AccountID: "acc-eur", ReferenceID: "shared-ref", Type: domain.EntryTypeCredit,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assertExpectations(t, mock)
}

func TestEntryRepository_CreateTransferLegSkipsReservation(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newEntryRepository(mock)
	transferID := "xfer-1"

	mock.ExpectExec(quoted(insertEntrySQL)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), tx, &domain.LedgerEntry{
		ID: "ent-4", AccountID: "acc-1", TransferID: transferID, ReferenceID: "ref-1", Type: domain.EntryTypeDebit,
	})
	require.NoError(t, err)
	assertExpectations(t, mock)
}

func TestEntryRepository_GetByTransfer(t *testing.T) {
	mock := newMockPool(t)
	repo := newEntryRepository(mock)
	transferID := "xfer-1"

	mock.ExpectQuery(quoted(selectEntriesByTransferSQL)).
		WithArgs(transferID).
		WillReturnRows(pgxmock.NewRows(entryCols).
			AddRow("ent-1", "acc-1", "alice", &transferID, "ref-1", "DEBIT", "CONFIRMED", int64(-50), "USD",
				int64(100), int64(50), int64(0), int64(0), []byte(`{"action":"TRANSFER"}`), fixedNow).
			AddRow("ent-2", "acc-2", "bob", &transferID, "ref-1", "CREDIT", "CONFIRMED", int64(50), "USD",
				int64(0), int64(50), int64(0), int64(0), []byte(`{}`), fixedNow))

	entries, err := repo.GetByTransfer(context.Background(), transferID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "xfer-1", entries[0].TransferID)
	assert.Equal(t, domain.EntryTypeDebit, entries[0].Type)
	assert.Equal(t, "TRANSFER", entries[0].Metadata["action"])
	assert.Equal(t, int64(50), entries[1].AbsAmount())
}

func TestEntryRepository_GetLatestByAccountEmpty(t *testing.T) {
	mock := newMockPool(t)
	repo := newEntryRepository(mock)

	mock.ExpectQuery(quoted(selectLatestEntrySQL)).WithArgs("acc-1").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetLatestByAccount(context.Background(), "acc-1")
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestEntryRepository_ReferenceExists(t *testing.T) {
	mock := newMockPool(t)
	repo := newEntryRepository(mock)

	mock.ExpectQuery(quoted(referenceExistsSQL)).
		WithArgs("ref-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ReferenceExists(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTransferRepository_GetByID(t *testing.T) {
	mock := newMockPool(t)
	repo := newTransferRepository(mock)
	original := "xfer-0"
	completed := fixedNow.Add(time.Second)

	mock.ExpectQuery(quoted(selectTransferSQL)).
		WithArgs("xfer-1").
		WillReturnRows(pgxmock.NewRows(transferCols).
			AddRow("xfer-1", "acc-2", "acc-1", int64(50), "USD", "COMPLETED", "ref-9", "bob",
				&original, []byte(`{"action":"REVERSAL"}`), fixedNow, &completed))

	transfer, err := repo.GetByID(context.Background(), "xfer-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCompleted, transfer.Status)
	assert.True(t, transfer.IsReversal())
	assert.Equal(t, "xfer-0", *transfer.OriginalTransferID)
	require.NotNil(t, transfer.CompletedAt)
	assert.Equal(t, completed, *transfer.CompletedAt)
}

func TestTransferRepository_GetByReferenceNotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := newTransferRepository(mock)

	mock.ExpectQuery(quoted(selectTransferByReferenceSQL)).WithArgs("ref-x").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByReference(context.Background(), "ref-x")
	assert.ErrorIs(t, err, domain.ErrTransferNotFound)
}

func TestTransferRepository_UpdateStatus(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newTransferRepository(mock)
	completed := fixedNow
	transfer := &domain.Transfer{ID: "xfer-1", Status: domain.TransferStatusReversed, CompletedAt: &completed}

	mock.ExpectExec(quoted(updateTransferStatusSQL)).
		WithArgs("xfer-1", "REVERSED", &completed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), tx, transfer))
	assertExpectations(t, mock)
}

func TestTransferRepository_CreateReferenceClaimedByEntry(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newTransferRepository(mock)
	transfer := &domain.Transfer{
		ID: "xfer-2", FromAccountID: "acc-1", ToAccountID: "acc-2", Amount: 10, Currency: "USD",
		Status: domain.TransferStatusPending, ReferenceID: "dep-1", CreatedBy: "alice", CreatedAt: fixedNow,
	}

	mock.ExpectExec(quoted(insertTransferSQL)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(quoted(reserveReferenceSQL)).
		WithArgs("dep-1", &transfer.ID).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintReservedReference})

	err := repo.Create(context.Background(), tx, transfer)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assertExpectations(t, mock)
}

func TestTransferRepository_CreateSecondReversal(t *testing.T) {
	mock := newMockPool(t)
	tx := beginMockTx(t, mock)
	repo := newTransferRepository(mock)

	mock.ExpectExec(quoted(insertTransferSQL)).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraintSingleReversal})

	err := repo.Create(context.Background(), tx, &domain.Transfer{ID: "xfer-r2"})
	assert.ErrorIs(t, err, domain.ErrTransferAlreadyReversed)
}

func TestOutboxRepository_GetUnpublished(t *testing.T) {
	mock := newMockPool(t)
	repo := newOutboxRepository(mock)

	mock.ExpectQuery(quoted(selectUnpublishedEventsSQL)).
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(outboxCols).
			AddRow("evt-1", "acc-1", "account", "balance.credited", []byte(`{"amount":500}`), fixedNow, false, (*time.Time)(nil)))

	events, err := repo.GetUnpublished(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeBalanceCredited, events[0].EventType)
	assert.InDelta(t, 500, events[0].Payload["amount"], 0)
	assert.Nil(t, events[0].PublishedAt)
}

func TestOutboxRepository_MarkPublished(t *testing.T) {
	mock := newMockPool(t)
	repo := newOutboxRepository(mock)

	mock.ExpectExec(quoted(markEventPublishedSQL)).
		WithArgs("evt-1", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkPublished(context.Background(), "evt-1", fixedNow))
	assertExpectations(t, mock)
}

func TestLedgerRepository_CheckConsistency(t *testing.T) {
	mock := newMockPool(t)
	repo := newLedgerRepository(mock)

	mock.ExpectQuery(quoted(checkConsistencySQL)).
		WillReturnRows(pgxmock.NewRows([]string{"total_balances", "total_entries"}).AddRow(int64(950), int64(950)))

	balances, entries, err := repo.CheckConsistency(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(950), balances)
	assert.Equal(t, int64(950), entries)
}
