package memory

import "context"

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	store *Store
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(store *Store) *LedgerRepository {
	return &LedgerRepository{store: store}
}

// CheckConsistency sums balances and externally-moving entries from one snapshot.
func (r *LedgerRepository) CheckConsistency(ctx context.Context) (int64, int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var totalBalances, totalEntries int64
	for _, acc := range r.store.accounts {
		totalBalances += acc.Available + acc.Pending
	}
	for _, e := range r.store.entries {
		if e.Type.MovesFundsExternally() {
			totalEntries += e.Amount
		}
	}

	return totalBalances, totalEntries, nil
}
