package memory

import (
	"context"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// EntryRepository implements usecase.EntryRepository over an append-only slice.
type EntryRepository struct {
	store *Store
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(store *Store) *EntryRepository {
	return &EntryRepository{store: store}
}

// Create stages an entry. A reference names one operation: a single entry, or
// the legs of one transfer.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.store.mu.RLock()
	taken := r.store.referenceTakenLocked(entry.ReferenceID)
	r.store.mu.RUnlock()
	if taken {
		return domain.ErrDuplicateReference
	}

	// Only the legs of one transfer may share a reference.
	for _, staged := range t.entries {
		if staged.ReferenceID != entry.ReferenceID {
			continue
		}
		if entry.TransferID == "" || staged.TransferID != entry.TransferID || staged.AccountID == entry.AccountID {
			return domain.ErrDuplicateReference
		}
	}
	for _, id := range t.newXfers {
		if t.transfers[id].ReferenceID == entry.ReferenceID && id != entry.TransferID {
			return domain.ErrDuplicateReference
		}
	}

	t.entries = append(t.entries, cloneEntry(entry))

	return nil
}

// GetByReference returns committed entries recorded under referenceID.
func (r *EntryRepository) GetByReference(ctx context.Context, referenceID string) ([]*domain.LedgerEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.collect(r.store.entriesByRef[referenceID]), nil
}

// GetByReferenceTx also sees entries staged by tx.
func (r *EntryRepository) GetByReferenceTx(ctx context.Context, tx usecase.Transaction, referenceID string) ([]*domain.LedgerEntry, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}

	entries, err := r.GetByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}

	for _, staged := range t.entries {
		if staged.ReferenceID == referenceID {
			entries = append(entries, cloneEntry(staged))
		}
	}

	return entries, nil
}

// ReferenceExists reports whether an entry or transfer already uses referenceID.
func (r *EntryRepository) ReferenceExists(ctx context.Context, referenceID string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if len(r.store.entriesByRef[referenceID]) > 0 {
		return true, nil
	}
	_, ok := r.store.transfersByRef[referenceID]

	return ok, nil
}

// GetByAccount lists an account's entries, newest first.
func (r *EntryRepository) GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	idx := r.store.entriesByAcct[accountID]
	newest := make([]int, len(idx))
	for i, v := range idx {
		newest[len(idx)-1-i] = v
	}

	return r.collect(page(newest, limit, offset)), nil
}

// GetByTransfer lists the legs of a transfer in write order.
func (r *EntryRepository) GetByTransfer(ctx context.Context, transferID string) ([]*domain.LedgerEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.collect(r.store.entriesByXfer[transferID]), nil
}

// GetLatestByAccount returns the most recent entry of an account.
func (r *EntryRepository) GetLatestByAccount(ctx context.Context, accountID string) (*domain.LedgerEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	idx := r.store.entriesByAcct[accountID]
	if len(idx) == 0 {
		return nil, domain.ErrEntryNotFound
	}

	return cloneEntry(r.store.entries[idx[len(idx)-1]]), nil
}

// collect must be called with the store read lock held.
func (r *EntryRepository) collect(idx []int) []*domain.LedgerEntry {
	entries := make([]*domain.LedgerEntry, 0, len(idx))
	for _, i := range idx {
		entries = append(entries, cloneEntry(r.store.entries[i]))
	}
	return entries
}
