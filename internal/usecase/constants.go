package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// MaxReferenceAttempts bounds reference id re-rolls on collision.
	MaxReferenceAttempts = 5

	// DefaultEntryCacheTTL is how long immutable ledger entries stay cached.
	DefaultEntryCacheTTL = time.Hour

	// reconciliationPageSize is the page size used when walking every account.
	reconciliationPageSize = 500
)
