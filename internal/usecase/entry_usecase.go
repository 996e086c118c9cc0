package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iho/walletledger/internal/domain"
)

const entryCachePrefix = "entries:ref:"

// EntryUseCase handles read access to the ledger log.
type EntryUseCase struct {
	entryRepo    EntryRepository
	accountRepo  AccountRepository
	transferRepo TransferRepository
	cache        Cache
	cacheTTL     time.Duration
}

// NewEntryUseCase creates a new EntryUseCase. cache may be nil.
func NewEntryUseCase(
	entryRepo EntryRepository,
	accountRepo AccountRepository,
	transferRepo TransferRepository,
	cache Cache,
	cacheTTL time.Duration,
) *EntryUseCase {
	if cacheTTL <= 0 {
		cacheTTL = DefaultEntryCacheTTL
	}

	return &EntryUseCase{
		entryRepo:    entryRepo,
		accountRepo:  accountRepo,
		transferRepo: transferRepo,
		cache:        cache,
		cacheTTL:     cacheTTL,
	}
}

// GetEntriesByAccountInput represents input for listing entries.
type GetEntriesByAccountInput struct {
	OwnerID   string
	AccountID string
	Limit     int
	Offset    int
}

// GetEntriesByAccount lists entries for an account, newest first.
func (uc *EntryUseCase) GetEntriesByAccount(ctx context.Context, input GetEntriesByAccountInput) ([]*domain.LedgerEntry, error) {
	account, err := uc.accountRepo.GetByID(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}

	if !account.OwnedBy(input.OwnerID) {
		return nil, domain.ErrAccountNotFound
	}

	limit, offset, _ := domain.ValidatePagination(input.Limit, input.Offset)

	return uc.entryRepo.GetByAccount(ctx, input.AccountID, limit, offset)
}

// GetEntriesByReference returns the caller's entries recorded under referenceID.
func (uc *EntryUseCase) GetEntriesByReference(ctx context.Context, ownerID, referenceID string) ([]*domain.LedgerEntry, error) {
	entries, err := uc.entriesByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}

	owned := ownedEntries(entries, ownerID)
	if len(owned) == 0 {
		return nil, domain.ErrEntryNotFound
	}

	return owned, nil
}

// GetEntriesByTransfer lists entries for a transfer. The transfer's creator sees
// both legs; the counterparty sees only its own.
func (uc *EntryUseCase) GetEntriesByTransfer(ctx context.Context, ownerID, transferID string) ([]*domain.LedgerEntry, error) {
	transfer, err := uc.transferRepo.GetByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	entries, err := uc.entryRepo.GetByTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}

	if ownerID != "" && transfer.CreatedBy == ownerID {
		return entries, nil
	}

	owned := ownedEntries(entries, ownerID)
	if len(owned) == 0 {
		return nil, domain.ErrTransferNotFound
	}

	return owned, nil
}

// entriesByReference reads through the cache. Entries are immutable and every
// entry under one reference commits together, so a non-empty result never goes stale.
func (uc *EntryUseCase) entriesByReference(ctx context.Context, referenceID string) ([]*domain.LedgerEntry, error) {
	key := entryCachePrefix + referenceID

	if uc.cache != nil {
		if data, err := uc.cache.Get(ctx, key); err == nil && data != nil {
			var cached []*domain.LedgerEntry
			if err := json.Unmarshal(data, &cached); err == nil && len(cached) > 0 {
				return cached, nil
			}
		}
	}

	entries, err := uc.entryRepo.GetByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil && len(entries) > 0 {
		if data, err := json.Marshal(entries); err == nil {
			// Cache failures only cost a database round trip.
			_ = uc.cache.Set(ctx, key, data, uc.cacheTTL)
		}
	}

	return entries, nil
}

func ownedEntries(entries []*domain.LedgerEntry, ownerID string) []*domain.LedgerEntry {
	if ownerID == "" {
		return nil
	}

	owned := make([]*domain.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.OwnerID == ownerID {
			owned = append(owned, e)
		}
	}

	return owned
}
