package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Holds and releases only move funds between the balances of one account.
const checkConsistencySQL = `SELECT
	(SELECT COALESCE(SUM(available + pending), 0) FROM accounts)::BIGINT,
	(SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE type NOT IN ('PENDING_DEBIT', 'RELEASE'))::BIGINT`

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	db querier
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return newLedgerRepository(pool)
}

func newLedgerRepository(db querier) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// CheckConsistency sums stored balances and the entries that moved funds.
func (r *LedgerRepository) CheckConsistency(ctx context.Context) (totalBalances, totalEntries int64, err error) {
	if err := r.db.QueryRow(ctx, checkConsistencySQL).Scan(&totalBalances, &totalEntries); err != nil {
		return 0, 0, mapError(err)
	}

	return totalBalances, totalEntries, nil
}
