package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

const entryColumns = `id, account_id, owner_id, transfer_id, reference_id, type, status, amount, currency,
available_before, available_after, pending_before, pending_after, metadata, created_at`

const (
	insertEntrySQL = `INSERT INTO ledger_entries (` + entryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	reserveReferenceSQL = `INSERT INTO ledger_references (reference_id, transfer_id) VALUES ($1, $2)`

	selectEntriesByReferenceSQL = `SELECT ` + entryColumns + ` FROM ledger_entries
WHERE reference_id = $1 ORDER BY seq`

	referenceExistsSQL = `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE reference_id = $1)
OR EXISTS (SELECT 1 FROM transfers WHERE reference_id = $1)`

	selectEntriesByAccountSQL = `SELECT ` + entryColumns + ` FROM ledger_entries
WHERE account_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`

	selectEntriesByTransferSQL = `SELECT ` + entryColumns + ` FROM ledger_entries
WHERE transfer_id = $1 ORDER BY seq`

	selectLatestEntrySQL = `SELECT ` + entryColumns + ` FROM ledger_entries
WHERE account_id = $1 ORDER BY seq DESC LIMIT 1`
)

// EntryRepository implements usecase.EntryRepository over the append-only
// ledger_entries table.
type EntryRepository struct {
	db querier
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return newEntryRepository(pool)
}

func newEntryRepository(db querier) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create appends an entry. An entry outside a transfer claims its reference
// for itself; transfer legs share the reference their transfer claimed.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	q, err := txQuerier(tx)
	if err != nil {
		return err
	}

	metadata, err := marshalJSON(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode entry metadata: %w", err)
	}

	if entry.TransferID == "" {
		if err := reserveReference(ctx, q, entry.ReferenceID, nil); err != nil {
			return err
		}
	}

	_, err = q.Exec(ctx, insertEntrySQL,
		entry.ID,
		entry.AccountID,
		entry.OwnerID,
		nullableString(entry.TransferID),
		entry.ReferenceID,
		string(entry.Type),
		string(entry.Status),
		entry.Amount,
		entry.Currency,
		entry.AvailableBefore,
		entry.AvailableAfter,
		entry.PendingBefore,
		entry.PendingAfter,
		metadata,
		entry.CreatedAt,
	)

	return mapError(err)
}

// GetByReference returns every committed entry recorded under referenceID.
func (r *EntryRepository) GetByReference(ctx context.Context, referenceID string) ([]*domain.LedgerEntry, error) {
	return r.query(ctx, r.db, selectEntriesByReferenceSQL, referenceID)
}

// GetByReferenceTx is GetByReference inside tx.
func (r *EntryRepository) GetByReferenceTx(ctx context.Context, tx usecase.Transaction, referenceID string) ([]*domain.LedgerEntry, error) {
	q, err := txQuerier(tx)
	if err != nil {
		return nil, err
	}

	return r.query(ctx, q, selectEntriesByReferenceSQL, referenceID)
}

// reserveReference claims referenceID for one operation. A second claim fails
// with ErrDuplicateReference once the first commits, whichever kind of
// operation either one is.
func reserveReference(ctx context.Context, q querier, referenceID string, transferID *string) error {
	_, err := q.Exec(ctx, reserveReferenceSQL, referenceID, transferID)
	return mapError(err)
}

// ReferenceExists reports whether referenceID names an entry or a transfer.
func (r *EntryRepository) ReferenceExists(ctx context.Context, referenceID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, referenceExistsSQL, referenceID).Scan(&exists); err != nil {
		return false, mapError(err)
	}

	return exists, nil
}

// GetByAccount lists an account's entries, newest first.
func (r *EntryRepository) GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	return r.query(ctx, r.db, selectEntriesByAccountSQL, accountID, limit, offset)
}

// GetByTransfer returns both legs of a transfer.
func (r *EntryRepository) GetByTransfer(ctx context.Context, transferID string) ([]*domain.LedgerEntry, error) {
	return r.query(ctx, r.db, selectEntriesByTransferSQL, transferID)
}

// GetLatestByAccount returns the most recent entry for an account.
func (r *EntryRepository) GetLatestByAccount(ctx context.Context, accountID string) (*domain.LedgerEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, selectLatestEntrySQL, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}

		return nil, mapError(err)
	}

	return entry, nil
}

func (r *EntryRepository) query(ctx context.Context, q querier, sql string, args ...any) ([]*domain.LedgerEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return entries, nil
}

func scanEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var (
		entry      domain.LedgerEntry
		transferID *string
		entryType  string
		status     string
		metadata   []byte
	)

	if err := row.Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.OwnerID,
		&transferID,
		&entry.ReferenceID,
		&entryType,
		&status,
		&entry.Amount,
		&entry.Currency,
		&entry.AvailableBefore,
		&entry.AvailableAfter,
		&entry.PendingBefore,
		&entry.PendingAfter,
		&metadata,
		&entry.CreatedAt,
	); err != nil {
		return nil, err
	}

	if transferID != nil {
		entry.TransferID = *transferID
	}
	entry.Type = domain.EntryType(entryType)
	entry.Status = domain.EntryStatus(status)

	if err := unmarshalJSON(metadata, &entry.Metadata); err != nil {
		return nil, fmt.Errorf("decode entry %s metadata: %w", entry.ID, err)
	}

	return &entry, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, v *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
