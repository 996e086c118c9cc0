package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/metrics"
)

// BalanceInput is a request to move funds on a single account.
type BalanceInput struct {
	Request     domain.RequestMeta
	OwnerID     string
	AccountID   string
	Currency    string
	ReferenceID string
	Amount      int64
}

// BalanceUseCase applies credit, debit, hold, capture and release to one account.
type BalanceUseCase struct {
	uow         unitOfWork
	accountRepo AccountRepository
	entryRepo   EntryRepository
	outboxRepo  OutboxRepository
	allocator   *ReferenceAllocator
	idGen       IDGenerator
	metrics     *metrics.Metrics
}

// NewBalanceUseCase creates a new BalanceUseCase.
func NewBalanceUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	entryRepo EntryRepository,
	outboxRepo OutboxRepository,
	allocator *ReferenceAllocator,
	idGen IDGenerator,
	m *metrics.Metrics,
	opts ...Option,
) *BalanceUseCase {
	return &BalanceUseCase{
		uow:         newUnitOfWork(txManager, opts),
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		outboxRepo:  outboxRepo,
		allocator:   allocator,
		idGen:       idGen,
		metrics:     m,
	}
}

// Credit adds funds to available.
func (uc *BalanceUseCase) Credit(ctx context.Context, input BalanceInput) (*domain.LedgerEntry, error) {
	return uc.apply(ctx, domain.EntryTypeCredit, input)
}

// Debit removes funds from available.
func (uc *BalanceUseCase) Debit(ctx context.Context, input BalanceInput) (*domain.LedgerEntry, error) {
	return uc.apply(ctx, domain.EntryTypeDebit, input)
}

// PendingDebit places an authorization hold by moving funds from available to pending.
func (uc *BalanceUseCase) PendingDebit(ctx context.Context, input BalanceInput) (*domain.LedgerEntry, error) {
	return uc.apply(ctx, domain.EntryTypePendingDebit, input)
}

// Capture settles a hold.
func (uc *BalanceUseCase) Capture(ctx context.Context, input BalanceInput) (*domain.LedgerEntry, error) {
	return uc.apply(ctx, domain.EntryTypeCapture, input)
}

// Release cancels a hold and returns the funds to available.
func (uc *BalanceUseCase) Release(ctx context.Context, input BalanceInput) (*domain.LedgerEntry, error) {
	return uc.apply(ctx, domain.EntryTypeRelease, input)
}

func (uc *BalanceUseCase) apply(ctx context.Context, op domain.EntryType, input BalanceInput) (*domain.LedgerEntry, error) {
	start := time.Now()

	entry, replayed, err := uc.execute(ctx, op, input)
	uc.observe(op, start, replayed, err)

	return entry, err
}

func (uc *BalanceUseCase) execute(ctx context.Context, op domain.EntryType, input BalanceInput) (*domain.LedgerEntry, bool, error) {
	currency, err := domain.NormalizeCurrency(input.Currency)
	if err != nil {
		return nil, false, err
	}

	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, false, err
	}

	// Fail fast on retries before contending for the account lock.
	ref := input.ReferenceID
	if ref != "" {
		existing, err := uc.entryRepo.GetByReference(ctx, ref)
		if err != nil {
			return nil, false, err
		}
		if len(existing) > 0 {
			entry, err := matchEntry(existing, op, input, currency)
			return entry, err == nil, err
		}
	} else {
		ref, err = uc.allocator.Allocate(ctx)
		if err != nil {
			return nil, false, err
		}
	}

	meta := withTraceID(input.Request)

	var (
		result   *domain.LedgerEntry
		replayed bool
	)

	err = uc.uow.run(ctx, func(ctx context.Context, tx Transaction) error {
		result, replayed = nil, false

		account, err := uc.accountRepo.GetByIDForUpdate(ctx, tx, input.AccountID)
		if err != nil {
			return err
		}

		if !account.OwnedBy(input.OwnerID) {
			return domain.ErrAccountNotFound
		}

		// A concurrent retry may have committed while we waited for the lock.
		if input.ReferenceID != "" {
			existing, err := uc.entryRepo.GetByReferenceTx(ctx, tx, ref)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				entry, err := matchEntry(existing, op, input, currency)
				if err != nil {
					return err
				}
				result, replayed = entry, true
				return nil
			}
		}

		if !account.IsActive() {
			return domain.ErrAccountNotActive
		}

		if account.Currency != currency {
			return fmt.Errorf("%w: account holds %s, request is %s", domain.ErrCurrencyMismatch, account.Currency, currency)
		}

		snap, err := account.Apply(op, input.Amount)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		account.UpdatedAt = now

		if err := uc.accountRepo.Update(ctx, tx, account); err != nil {
			return err
		}

		entry := domain.NewLedgerEntry(uc.idGen.Generate(), account, op, input.Amount, ref, snap, meta.EntryMetadata(op, ref, now), now)
		if err := uc.entryRepo.Create(ctx, tx, entry); err != nil {
			if errors.Is(err, domain.ErrDuplicateReference) {
				return fmt.Errorf("%w: %s", domain.ErrReferenceConflict, ref)
			}
			return err
		}

		if err := uc.outboxRepo.Create(ctx, tx, domain.NewBalanceEvent(uc.idGen.Generate(), entry)); err != nil {
			return err
		}

		result = entry
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return result, replayed, nil
}

// matchEntry returns the recorded entry when a reference is replayed with the same
// arguments. Any difference means the caller reused a key for another operation.
func matchEntry(entries []*domain.LedgerEntry, op domain.EntryType, input BalanceInput, currency string) (*domain.LedgerEntry, error) {
	if len(entries) != 1 {
		return nil, fmt.Errorf("%w: %s is already used by another operation", domain.ErrReferenceConflict, input.ReferenceID)
	}

	e := entries[0]
	if e.AccountID != input.AccountID ||
		e.OwnerID != input.OwnerID ||
		e.Type != op ||
		e.AbsAmount() != input.Amount ||
		e.Currency != currency {
		return nil, fmt.Errorf("%w: %s", domain.ErrReferenceConflict, input.ReferenceID)
	}

	return e, nil
}

func (uc *BalanceUseCase) observe(op domain.EntryType, start time.Time, replayed bool, err error) {
	if uc.metrics == nil {
		return
	}

	outcome := "success"
	switch {
	case err != nil:
		outcome = strings.ToLower(domain.KindOf(err).String())
		if domain.IsRetryable(err) {
			uc.metrics.LockContention.WithLabelValues(string(op)).Inc()
		}
	case replayed:
		outcome = "replayed"
		uc.metrics.IdempotentReplays.WithLabelValues(string(op)).Inc()
	}

	uc.metrics.BalanceOperations.WithLabelValues(string(op), outcome).Inc()
	uc.metrics.BalanceOperationDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
}
