package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// PostgreSQL error codes the repositories translate.
const (
	pgErrUniqueViolation      = "23505"
	pgErrLockNotAvailable     = "55P03"
	pgErrDeadlock             = "40P01"
	pgErrSerializationFailure = "40001"
)

// Unique constraints from the schema migrations.
const (
	constraintAccountOwnerCurrency = "accounts_owner_id_currency_key"
	constraintEntryReference       = "ledger_entries_reference_id_account_id_key"
	constraintReservedReference    = "ledger_references_pkey"
	constraintTransferReference    = "transfers_reference_id_key"
	constraintSingleReversal       = "transfers_original_transfer_id_key"
)

var errForeignTx = errors.New("postgres: transaction was not started by TxManager")

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func txQuerier(tx usecase.Transaction) (querier, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, errForeignTx
	}
	return t.PgxTx(), nil
}

// mapError translates driver errors into domain errors, keeping the original in
// the chain for logging. A statement cut off by the transaction deadline was
// waiting on a lock, so it reports contention like lock_timeout does.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(domain.ErrContention, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgErrLockNotAvailable, pgErrDeadlock, pgErrSerializationFailure:
		return errors.Join(domain.ErrContention, err)
	case pgErrUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintAccountOwnerCurrency:
			return errors.Join(domain.ErrDuplicateAccount, err)
		case constraintEntryReference, constraintTransferReference, constraintReservedReference:
			return errors.Join(domain.ErrDuplicateReference, err)
		case constraintSingleReversal:
			return errors.Join(domain.ErrTransferAlreadyReversed, err)
		}
	}

	return err
}
