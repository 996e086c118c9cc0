package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/iho/walletledger/internal/usecase"
)

const setLockTimeoutPattern = `SET LOCAL lock_timeout = '1500ms'`

func TestTxManagerBeginSuccess(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBegin()
	mockPool.ExpectExec(setLockTimeoutPattern).WillReturnResult(pgxmock.NewResult("SET", 0))
	mockPool.ExpectCommit()

	manager := newTxManagerWithPool(mockPool, 1500*time.Millisecond)
	tx, err := manager.Begin(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx == nil {
		t.Fatalf("expected transaction")
	}

	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestTxManagerBeginError(t *testing.T) {
	mockPool := newMockPool(t)
	mockErr := errors.New("begin failed")
	mockPool.ExpectBegin().WillReturnError(mockErr)

	manager := newTxManagerWithPool(mockPool, time.Second)
	tx, err := manager.Begin(context.Background())
	if err == nil || !errors.Is(err, mockErr) {
		t.Fatalf("expected begin error, got err=%v tx=%v", err, tx)
	}
}

func TestTxManagerLockTimeoutFailureRollsBack(t *testing.T) {
	mockPool := newMockPool(t)
	mockErr := errors.New("set failed")
	mockPool.ExpectBegin()
	mockPool.ExpectExec(setLockTimeoutPattern).WillReturnError(mockErr)
	mockPool.ExpectRollback()

	manager := newTxManagerWithPool(mockPool, 1500*time.Millisecond)
	if _, err := manager.Begin(context.Background()); !errors.Is(err, mockErr) {
		t.Fatalf("expected lock timeout error, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestTxManagerDefaultLockTimeout(t *testing.T) {
	manager := newTxManagerWithPool(newMockPool(t), 0)
	if manager.lockTimeout != DefaultLockTimeout {
		t.Fatalf("expected default lock timeout, got %s", manager.lockTimeout)
	}
}

func TestTxRollback(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBegin()
	mockPool.ExpectExec(setLockTimeoutPattern).WillReturnResult(pgxmock.NewResult("SET", 0))
	mockPool.ExpectRollback()

	manager := newTxManagerWithPool(mockPool, 1500*time.Millisecond)
	tx, err := manager.Begin(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := tx.Rollback(context.Background()); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	assertExpectations(t, mockPool)
}

type foreignTx struct{}

func (foreignTx) Commit(context.Context) error   { return nil }
func (foreignTx) Rollback(context.Context) error { return nil }

var _ usecase.Transaction = foreignTx{}

func TestTxQuerierRejectsForeignTransactions(t *testing.T) {
	if _, err := txQuerier(foreignTx{}); !errors.Is(err, errForeignTx) {
		t.Fatalf("expected foreign tx error, got %v", err)
	}
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// beginMockTx opens a Tx whose statements are served by mockPool.
func beginMockTx(t *testing.T, mockPool pgxmock.PgxPoolIface) *Tx {
	t.Helper()
	mockPool.ExpectBegin()
	mockPool.ExpectExec(setLockTimeoutPattern).WillReturnResult(pgxmock.NewResult("SET", 0))

	tx, err := newTxManagerWithPool(mockPool, 1500*time.Millisecond).Begin(context.Background())
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	return tx.(*Tx)
}

func assertExpectations(t *testing.T, pool pgxmock.PgxPoolIface) {
	t.Helper()
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations were not met: %v", err)
	}
}
