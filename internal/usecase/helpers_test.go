package usecase_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/iho/walletledger/internal/adapter/repository/memory"
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/metrics"
	"github.com/iho/walletledger/internal/usecase"
)

// sequenceIDGenerator hands out ordered, unique ids.
type sequenceIDGenerator struct {
	prefix string
	next   atomic.Int64
}

func (g *sequenceIDGenerator) Generate() string {
	return fmt.Sprintf("%s%012d", g.prefix, g.next.Add(1))
}

// testLedger wires every use case to one in-memory store.
type testLedger struct {
	store     *memory.Store
	txManager *memory.TxManager
	accounts  *memory.AccountRepository
	entries   *memory.EntryRepository
	transfers *memory.TransferRepository
	outbox    *memory.OutboxRepository
	metrics   *metrics.Metrics

	accountUC  *usecase.AccountUseCase
	balanceUC  *usecase.BalanceUseCase
	transferUC *usecase.TransferUseCase
	entryUC    *usecase.EntryUseCase
	ledgerUC   *usecase.LedgerUseCase
	reconUC    *usecase.ReconciliationUseCase
}

func newTestLedger(t *testing.T, lockTimeout time.Duration, opts ...usecase.Option) *testLedger {
	t.Helper()

	store := memory.NewStore(lockTimeout)
	txManager := memory.NewTxManager(store)
	idGen := &sequenceIDGenerator{prefix: "id-"}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	l := &testLedger{
		store:     store,
		txManager: txManager,
		accounts:  memory.NewAccountRepository(store),
		entries:   memory.NewEntryRepository(store),
		transfers: memory.NewTransferRepository(store),
		outbox:    memory.NewOutboxRepository(store),
		metrics:   m,
	}

	allocator := usecase.NewReferenceAllocator(&sequenceIDGenerator{prefix: "ref-"}, l.entries, m)

	l.accountUC = usecase.NewAccountUseCase(txManager, l.accounts, l.outbox, idGen, m, opts...)
	l.balanceUC = usecase.NewBalanceUseCase(txManager, l.accounts, l.entries, l.outbox, allocator, idGen, m, opts...)
	l.transferUC = usecase.NewTransferUseCase(txManager, l.accounts, l.transfers, l.entries, l.outbox, allocator, idGen, m, opts...)
	l.entryUC = usecase.NewEntryUseCase(l.entries, l.accounts, l.transfers, nil, 0)
	l.ledgerUC = usecase.NewLedgerUseCase(memory.NewLedgerRepository(store), m)
	l.reconUC = usecase.NewReconciliationUseCase(l.accounts, l.entries, l.ledgerUC)

	return l
}

// openAccount creates an account and credits it with funded minor units.
func (l *testLedger) openAccount(t *testing.T, owner, currency string, funded int64) *domain.Account {
	t.Helper()

	ctx := context.Background()
	acc, err := l.accountUC.CreateAccount(ctx, usecase.CreateAccountInput{OwnerID: owner, Currency: currency})
	require.NoError(t, err)

	if funded > 0 {
		_, err = l.balanceUC.Credit(ctx, usecase.BalanceInput{
			OwnerID:   owner,
			AccountID: acc.ID,
			Currency:  currency,
			Amount:    funded,
		})
		require.NoError(t, err)
	}

	return l.account(t, acc.ID)
}

func (l *testLedger) account(t *testing.T, id string) *domain.Account {
	t.Helper()

	acc, err := l.accounts.GetByID(context.Background(), id)
	require.NoError(t, err)

	return acc
}

// requireConsistent asserts the global and per-account reconciliation invariants.
func (l *testLedger) requireConsistent(t *testing.T) {
	t.Helper()

	report, err := l.reconUC.GenerateReconciliationReport(context.Background())
	require.NoError(t, err)
	require.True(t, report.LedgerConsistent, "balances=%d entries=%d", report.TotalBalances, report.TotalEntries)
	require.Empty(t, report.Discrepancies)
}
