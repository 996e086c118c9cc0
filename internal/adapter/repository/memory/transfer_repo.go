package memory

import (
	"context"
	"sort"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// TransferRepository implements usecase.TransferRepository.
type TransferRepository struct {
	store *Store
}

// NewTransferRepository creates a new TransferRepository.
func NewTransferRepository(store *Store) *TransferRepository {
	return &TransferRepository{store: store}
}

func transferLockKey(id string) string {
	return "transfer:" + id
}

// Create stages a transfer. Reference ids are unique across transfers.
func (r *TransferRepository) Create(ctx context.Context, tx usecase.Transaction, transfer *domain.Transfer) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.store.mu.RLock()
	dup := r.store.referenceTakenLocked(transfer.ReferenceID)
	r.store.mu.RUnlock()
	if dup {
		return domain.ErrDuplicateReference
	}

	for _, id := range t.newXfers {
		if t.transfers[id].ReferenceID == transfer.ReferenceID {
			return domain.ErrDuplicateReference
		}
	}
	for _, staged := range t.entries {
		if staged.ReferenceID == transfer.ReferenceID {
			return domain.ErrDuplicateReference
		}
	}

	// A new row is invisible to others until commit; holding its lock mirrors that.
	if err := t.lock(ctx, transferLockKey(transfer.ID)); err != nil {
		return err
	}

	t.transfers[transfer.ID] = cloneTransfer(transfer)
	t.newXfers = append(t.newXfers, transfer.ID)

	return nil
}

// UpdateStatus stages the transfer's status and completion time.
func (r *TransferRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, transfer *domain.Transfer) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	current, ok := t.transfers[transfer.ID]
	if !ok {
		r.store.mu.RLock()
		committed, exists := r.store.transfers[transfer.ID]
		r.store.mu.RUnlock()
		if !exists {
			return domain.ErrTransferNotFound
		}

		if err := t.lock(ctx, transferLockKey(transfer.ID)); err != nil {
			return err
		}
		current = cloneTransfer(committed)
	}

	current.Status = transfer.Status
	if transfer.CompletedAt != nil {
		at := *transfer.CompletedAt
		current.CompletedAt = &at
	}
	t.transfers[transfer.ID] = current

	return nil
}

// GetByID retrieves a committed transfer.
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*domain.Transfer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	xfer, ok := r.store.transfers[id]
	if !ok {
		return nil, domain.ErrTransferNotFound
	}

	return cloneTransfer(xfer), nil
}

// GetByIDForUpdate locks a transfer for the rest of the transaction.
func (r *TransferRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transfer, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}

	if staged, ok := t.transfers[id]; ok {
		return cloneTransfer(staged), nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}

	if err := t.lock(ctx, transferLockKey(id)); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

// GetByReference retrieves a committed transfer by its reference id.
func (r *TransferRepository) GetByReference(ctx context.Context, referenceID string) (*domain.Transfer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.transfersByRef[referenceID]
	if !ok {
		return nil, domain.ErrTransferNotFound
	}

	return cloneTransfer(r.store.transfers[id]), nil
}

// GetByReferenceTx also sees transfers staged by tx.
func (r *TransferRepository) GetByReferenceTx(ctx context.Context, tx usecase.Transaction, referenceID string) (*domain.Transfer, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}

	for _, id := range t.newXfers {
		if staged := t.transfers[id]; staged.ReferenceID == referenceID {
			return cloneTransfer(staged), nil
		}
	}

	return r.GetByReference(ctx, referenceID)
}

// ListByAccount lists transfers touching an account, newest first.
func (r *TransferRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transfer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var matched []*domain.Transfer
	for i := len(r.store.transferOrder) - 1; i >= 0; i-- {
		xfer := r.store.transfers[r.store.transferOrder[i]]
		if xfer.FromAccountID == accountID || xfer.ToAccountID == accountID {
			matched = append(matched, cloneTransfer(xfer))
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return page(matched, limit, offset), nil
}
