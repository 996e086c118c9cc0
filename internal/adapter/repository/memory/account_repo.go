package memory

import (
	"context"
	"errors"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	store *Store
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

func accountLockKey(id string) string {
	return "account:" + id
}

// Create stages a new account.
func (r *AccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	key := ownerKey(account.OwnerID, account.Currency)

	r.store.mu.RLock()
	_, exists := r.store.ownerAccounts[key]
	r.store.mu.RUnlock()
	if exists {
		return domain.ErrDuplicateAccount
	}

	for _, id := range t.newAccounts {
		staged := t.accounts[id]
		if ownerKey(staged.OwnerID, staged.Currency) == key {
			return domain.ErrDuplicateAccount
		}
	}

	t.accounts[account.ID] = cloneAccount(account)
	t.newAccounts = append(t.newAccounts, account.ID)

	return nil
}

// GetByID retrieves a committed account.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	acc, ok := r.store.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	return cloneAccount(acc), nil
}

// GetByIDForUpdate locks an account for the rest of the transaction.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}

	return r.lockAndRead(ctx, t, id)
}

// GetByIDsForUpdate locks accounts in ascending id order. Unknown ids are skipped.
func (r *AccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Account, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, 0, len(ids))
	for _, id := range sortedCopy(ids) {
		acc, err := r.lockAndRead(ctx, t, id)
		if errors.Is(err, domain.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	return accounts, nil
}

func (r *AccountRepository) lockAndRead(ctx context.Context, t *Tx, id string) (*domain.Account, error) {
	if staged, ok := t.accounts[id]; ok {
		return cloneAccount(staged), nil
	}

	r.store.mu.RLock()
	_, exists := r.store.accounts[id]
	r.store.mu.RUnlock()
	if !exists {
		return nil, domain.ErrAccountNotFound
	}

	if err := t.lock(ctx, accountLockKey(id)); err != nil {
		return nil, err
	}

	// Re-read after the wait: the previous holder may have committed new balances.
	return r.GetByID(ctx, id)
}

// Update stages new balances and status for an account.
func (r *AccountRepository) Update(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	if _, ok := t.accounts[account.ID]; !ok {
		r.store.mu.RLock()
		_, exists := r.store.accounts[account.ID]
		r.store.mu.RUnlock()
		if !exists {
			return domain.ErrAccountNotFound
		}
	}

	if err := t.lock(ctx, accountLockKey(account.ID)); err != nil {
		return err
	}

	t.accounts[account.ID] = cloneAccount(account)

	return nil
}

// ListByOwner lists an owner's accounts in creation order.
func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var owned []*domain.Account
	for _, id := range r.store.accountOrder {
		if acc := r.store.accounts[id]; acc.OwnerID == ownerID {
			owned = append(owned, cloneAccount(acc))
		}
	}

	return page(owned, limit, offset), nil
}

// List lists all accounts in creation order.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids := page(r.store.accountOrder, limit, offset)
	accounts := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, cloneAccount(r.store.accounts[id]))
	}

	return accounts, nil
}
