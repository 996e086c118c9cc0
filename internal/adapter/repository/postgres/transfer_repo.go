package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

const transferColumns = `id, from_account_id, to_account_id, amount, currency, status, reference_id,
created_by, original_transfer_id, metadata, created_at, completed_at`

const (
	insertTransferSQL = `INSERT INTO transfers (` + transferColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateTransferStatusSQL = `UPDATE transfers SET status = $2, completed_at = $3 WHERE id = $1`

	selectTransferSQL = `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`

	selectTransferForUpdateSQL = selectTransferSQL + ` FOR UPDATE`

	selectTransferByReferenceSQL = `SELECT ` + transferColumns + ` FROM transfers WHERE reference_id = $1`

	listTransfersByAccountSQL = `SELECT ` + transferColumns + ` FROM transfers
WHERE from_account_id = $1 OR to_account_id = $1
ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
)

// TransferRepository implements usecase.TransferRepository.
type TransferRepository struct {
	db querier
}

// NewTransferRepository creates a new TransferRepository.
func NewTransferRepository(pool *pgxpool.Pool) *TransferRepository {
	return newTransferRepository(pool)
}

func newTransferRepository(db querier) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create creates a new transfer within a transaction and claims its reference.
func (r *TransferRepository) Create(ctx context.Context, tx usecase.Transaction, transfer *domain.Transfer) error {
	q, err := txQuerier(tx)
	if err != nil {
		return err
	}

	metadata, err := marshalJSON(transfer.Metadata)
	if err != nil {
		return fmt.Errorf("encode transfer metadata: %w", err)
	}

	_, err = q.Exec(ctx, insertTransferSQL,
		transfer.ID,
		transfer.FromAccountID,
		transfer.ToAccountID,
		transfer.Amount,
		transfer.Currency,
		string(transfer.Status),
		transfer.ReferenceID,
		transfer.CreatedBy,
		transfer.OriginalTransferID,
		metadata,
		transfer.CreatedAt,
		transfer.CompletedAt,
	)
	if err != nil {
		return mapError(err)
	}

	return reserveReference(ctx, q, transfer.ReferenceID, &transfer.ID)
}

// UpdateStatus persists the status and completion time.
func (r *TransferRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, transfer *domain.Transfer) error {
	q, err := txQuerier(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, updateTransferStatusSQL, transfer.ID, string(transfer.Status), transfer.CompletedAt)
	if err != nil {
		return mapError(err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrTransferNotFound
	}

	return nil
}

// GetByID retrieves a transfer by ID.
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*domain.Transfer, error) {
	return scanTransfer(r.db.QueryRow(ctx, selectTransferSQL, id))
}

// GetByIDForUpdate retrieves a transfer by ID and locks it until tx ends.
func (r *TransferRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transfer, error) {
	q, err := txQuerier(tx)
	if err != nil {
		return nil, err
	}

	return scanTransfer(q.QueryRow(ctx, selectTransferForUpdateSQL, id))
}

// GetByReference retrieves a transfer by its reference id.
func (r *TransferRepository) GetByReference(ctx context.Context, referenceID string) (*domain.Transfer, error) {
	return scanTransfer(r.db.QueryRow(ctx, selectTransferByReferenceSQL, referenceID))
}

// GetByReferenceTx is GetByReference inside tx.
func (r *TransferRepository) GetByReferenceTx(ctx context.Context, tx usecase.Transaction, referenceID string) (*domain.Transfer, error) {
	q, err := txQuerier(tx)
	if err != nil {
		return nil, err
	}

	return scanTransfer(q.QueryRow(ctx, selectTransferByReferenceSQL, referenceID))
}

// ListByAccount lists transfers touching an account, newest first.
func (r *TransferRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transfer, error) {
	rows, err := r.db.Query(ctx, listTransfersByAccountSQL, accountID, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var transfers []*domain.Transfer
	for rows.Next() {
		transfer, err := scanTransferRow(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, transfer)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return transfers, nil
}

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	transfer, err := scanTransferRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransferNotFound
		}

		return nil, mapError(err)
	}

	return transfer, nil
}

func scanTransferRow(row rowScanner) (*domain.Transfer, error) {
	var (
		transfer domain.Transfer
		status   string
		metadata []byte
	)

	if err := row.Scan(
		&transfer.ID,
		&transfer.FromAccountID,
		&transfer.ToAccountID,
		&transfer.Amount,
		&transfer.Currency,
		&status,
		&transfer.ReferenceID,
		&transfer.CreatedBy,
		&transfer.OriginalTransferID,
		&metadata,
		&transfer.CreatedAt,
		&transfer.CompletedAt,
	); err != nil {
		return nil, err
	}

	transfer.Status = domain.TransferStatus(status)

	if err := unmarshalJSON(metadata, &transfer.Metadata); err != nil {
		return nil, fmt.Errorf("decode transfer %s metadata: %w", transfer.ID, err)
	}

	return &transfer, nil
}
