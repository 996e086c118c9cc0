package usecase

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

import (
	"context"
	"time"

	"github.com/iho/walletledger/internal/domain"
)

// AccountRepository defines data access for accounts.
type AccountRepository interface {
	// Create inserts a new account. A second account for the same owner and currency
	// fails with domain.ErrDuplicateAccount.
	Create(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetByIDForUpdate locks the account until tx ends. Lock waits are bounded and
	// surface domain.ErrContention.
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Account, error)
	// GetByIDsForUpdate locks every account in ascending id order.
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Account, error)
	Update(ctx context.Context, tx Transaction, account *domain.Account) error
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Account, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Account, error)
}

// EntryRepository defines data access for the append-only ledger log.
type EntryRepository interface {
	// Create appends an entry. The pair (reference id, account id) is unique;
	// a duplicate fails with domain.ErrDuplicateReference.
	Create(ctx context.Context, tx Transaction, entry *domain.LedgerEntry) error
	GetByReference(ctx context.Context, referenceID string) ([]*domain.LedgerEntry, error)
	GetByReferenceTx(ctx context.Context, tx Transaction, referenceID string) ([]*domain.LedgerEntry, error)
	ReferenceExists(ctx context.Context, referenceID string) (bool, error)
	GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.LedgerEntry, error)
	GetByTransfer(ctx context.Context, transferID string) ([]*domain.LedgerEntry, error)
	GetLatestByAccount(ctx context.Context, accountID string) (*domain.LedgerEntry, error)
}

// TransferRepository defines data access for transfers.
type TransferRepository interface {
	Create(ctx context.Context, tx Transaction, transfer *domain.Transfer) error
	UpdateStatus(ctx context.Context, tx Transaction, transfer *domain.Transfer) error
	GetByID(ctx context.Context, id string) (*domain.Transfer, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Transfer, error)
	GetByReference(ctx context.Context, referenceID string) (*domain.Transfer, error)
	GetByReferenceTx(ctx context.Context, tx Transaction, referenceID string) (*domain.Transfer, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transfer, error)
}

// LedgerRepository defines data access for ledger-wide operations.
type LedgerRepository interface {
	// CheckConsistency returns the sum of all stored balances and the sum of all
	// entries that move funds in or out of accounts.
	CheckConsistency(ctx context.Context) (totalBalances, totalEntries int64, err error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation while it fails with a retryable error.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique, lexicographically sortable IDs.
type IDGenerator interface {
	Generate() string
}

// OwnerResolver maps an already-authenticated caller credential to the stable
// owner id accounts are keyed by.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, credential string) (string, error)
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
}
