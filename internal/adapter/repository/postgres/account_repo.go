package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

const accountColumns = `id, owner_id, currency, status, available, pending, created_at, updated_at`

const (
	insertAccountSQL = `INSERT INTO accounts (` + accountColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectAccountSQL = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	selectAccountForUpdateSQL = selectAccountSQL + ` FOR UPDATE`

	selectAccountsForUpdateSQL = `SELECT ` + accountColumns + ` FROM accounts
WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	updateAccountSQL = `UPDATE accounts
SET status = $2, available = $3, pending = $4, updated_at = $5
WHERE id = $1`

	listAccountsByOwnerSQL = `SELECT ` + accountColumns + ` FROM accounts
WHERE owner_id = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`

	listAccountsSQL = `SELECT ` + accountColumns + ` FROM accounts
ORDER BY created_at, id LIMIT $1 OFFSET $2`
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	db querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return newAccountRepository(pool)
}

func newAccountRepository(db querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	q, err := txQuerier(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, insertAccountSQL,
		account.ID,
		account.OwnerID,
		account.Currency,
		string(account.Status),
		account.Available,
		account.Pending,
		account.CreatedAt,
		account.UpdatedAt,
	)

	return mapError(err)
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectAccountSQL, id))
}

// GetByIDForUpdate retrieves an account by ID with a FOR UPDATE lock.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	q, err := txQuerier(tx)
	if err != nil {
		return nil, err
	}

	return scanAccount(q.QueryRow(ctx, selectAccountForUpdateSQL, id))
}

// GetByIDsForUpdate locks accounts in id order. Unknown ids are skipped.
func (r *AccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Account, error) {
	q, err := txQuerier(tx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, selectAccountsForUpdateSQL, ids)
	if err != nil {
		return nil, mapError(err)
	}

	return collectAccounts(rows)
}

// Update persists balances and status.
func (r *AccountRepository) Update(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	q, err := txQuerier(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, updateAccountSQL,
		account.ID,
		string(account.Status),
		account.Available,
		account.Pending,
		account.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// ListByOwner lists an owner's accounts in creation order.
func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, listAccountsByOwnerSQL, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}

	return collectAccounts(rows)
}

// List lists all accounts in creation order.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, listAccountsSQL, limit, offset)
	if err != nil {
		return nil, err
	}

	return collectAccounts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountRow(row rowScanner) (*domain.Account, error) {
	var (
		acc    domain.Account
		status string
	)

	if err := row.Scan(
		&acc.ID,
		&acc.OwnerID,
		&acc.Currency,
		&status,
		&acc.Available,
		&acc.Pending,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	acc.Status = domain.AccountStatus(status)

	return &acc, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	acc, err := scanAccountRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}

		return nil, mapError(err)
	}

	return acc, nil
}

func collectAccounts(rows pgx.Rows) ([]*domain.Account, error) {
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		acc, err := scanAccountRow(rows)
		if err != nil {
			return nil, mapError(err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return accounts, nil
}
