package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/metrics"
)

// TransferUseCase handles transfer business logic.
type TransferUseCase struct {
	uow          unitOfWork
	accountRepo  AccountRepository
	transferRepo TransferRepository
	entryRepo    EntryRepository
	outboxRepo   OutboxRepository
	allocator    *ReferenceAllocator
	idGen        IDGenerator
	metrics      *metrics.Metrics
}

// NewTransferUseCase creates a new TransferUseCase.
func NewTransferUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	transferRepo TransferRepository,
	entryRepo EntryRepository,
	outboxRepo OutboxRepository,
	allocator *ReferenceAllocator,
	idGen IDGenerator,
	m *metrics.Metrics,
	opts ...Option,
) *TransferUseCase {
	return &TransferUseCase{
		uow:          newUnitOfWork(txManager, opts),
		accountRepo:  accountRepo,
		transferRepo: transferRepo,
		entryRepo:    entryRepo,
		outboxRepo:   outboxRepo,
		allocator:    allocator,
		idGen:        idGen,
		metrics:      m,
	}
}

// TransferInput represents input for moving funds between two accounts.
type TransferInput struct {
	Request       domain.RequestMeta
	Metadata      map[string]any
	OwnerID       string
	FromAccountID string
	ToAccountID   string
	Currency      string
	// ReferenceID is optional. When set, replaying the same request returns the
	// transfer that was already recorded.
	ReferenceID string
	Amount      int64
}

// ReverseTransferInput represents input for reversing a completed transfer.
type ReverseTransferInput struct {
	Request    domain.RequestMeta
	OwnerID    string
	TransferID string
}

// ListTransfersInput represents input for listing the transfers of an account.
type ListTransfersInput struct {
	OwnerID   string
	AccountID string
	Limit     int
	Offset    int
}

// Transfer moves funds from one account to another.
func (uc *TransferUseCase) Transfer(ctx context.Context, input TransferInput) (*domain.Transfer, error) {
	start := time.Now()

	transfer, err := uc.transfer(ctx, input)
	if uc.metrics != nil {
		if err != nil {
			uc.recordError(err)
		} else {
			uc.metrics.TransfersCompleted.Inc()
			uc.metrics.TransferAmount.Observe(float64(transfer.Amount))
			uc.metrics.TransferDuration.Observe(time.Since(start).Seconds())
		}
	}

	return transfer, err
}

func (uc *TransferUseCase) transfer(ctx context.Context, input TransferInput) (*domain.Transfer, error) {
	currency, err := domain.NormalizeCurrency(input.Currency)
	if err != nil {
		return nil, err
	}

	draft := &domain.Transfer{
		FromAccountID: input.FromAccountID,
		ToAccountID:   input.ToAccountID,
		Amount:        input.Amount,
		Currency:      currency,
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	if err := domain.ValidateMetadata(input.Metadata); err != nil {
		return nil, err
	}

	ref := input.ReferenceID
	if ref != "" {
		existing, err := uc.findByReference(ctx, nil, ref)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return matchTransfer(existing, input, currency)
		}
	} else {
		ref, err = uc.allocator.Allocate(ctx)
		if err != nil {
			return nil, err
		}
	}

	meta := withTraceID(input.Request)

	// Lock both endpoints in a fixed global order so mirror-image transfers cannot deadlock.
	accountIDs := []string{input.FromAccountID, input.ToAccountID}
	sort.Strings(accountIDs)

	var result *domain.Transfer

	err = uc.uow.run(ctx, func(ctx context.Context, tx Transaction) error {
		result = nil

		accounts, err := uc.lockAccounts(ctx, tx, accountIDs)
		if err != nil {
			return err
		}

		from, to := accounts[input.FromAccountID], accounts[input.ToAccountID]
		if !from.OwnedBy(input.OwnerID) {
			return domain.ErrAccountNotFound
		}

		if input.ReferenceID != "" {
			existing, err := uc.findByReference(ctx, tx, ref)
			if err != nil {
				return err
			}
			if existing != nil {
				result, err = matchTransfer(existing, input, currency)
				return err
			}
		}

		if !from.IsActive() || !to.IsActive() {
			return domain.ErrAccountNotActive
		}

		if from.Currency != to.Currency || from.Currency != currency {
			return fmt.Errorf("%w: %s -> %s in %s", domain.ErrCurrencyMismatch, from.Currency, to.Currency, currency)
		}

		debitSnap, err := from.Apply(domain.EntryTypeDebit, input.Amount)
		if err != nil {
			return err
		}

		creditSnap, err := to.Apply(domain.EntryTypeCredit, input.Amount)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		transfer := &domain.Transfer{
			ID:            uc.idGen.Generate(),
			FromAccountID: from.ID,
			ToAccountID:   to.ID,
			Amount:        input.Amount,
			Currency:      currency,
			ReferenceID:   ref,
			CreatedBy:     input.OwnerID,
			Status:        domain.TransferStatusPending,
			Metadata:      input.Metadata,
			CreatedAt:     now,
		}

		if err := uc.createTransfer(ctx, tx, transfer); err != nil {
			return err
		}

		if err := uc.writeLeg(ctx, tx, transfer, from, domain.EntryTypeDebit, debitSnap, meta, now); err != nil {
			return err
		}

		if err := uc.writeLeg(ctx, tx, transfer, to, domain.EntryTypeCredit, creditSnap, meta, now); err != nil {
			return err
		}

		if err := transfer.Transition(domain.TransferStatusCompleted, now); err != nil {
			return err
		}

		if err := uc.transferRepo.UpdateStatus(ctx, tx, transfer); err != nil {
			return err
		}

		event := domain.NewTransferEvent(uc.idGen.Generate(), domain.EventTypeTransferCompleted, transfer, now)
		if err := uc.outboxRepo.Create(ctx, tx, event); err != nil {
			return err
		}

		result = transfer
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ReverseTransfer undoes a completed transfer with a compensating reversal transfer.
// Only the creator of the original may reverse it, and only once.
func (uc *TransferUseCase) ReverseTransfer(ctx context.Context, input ReverseTransferInput) (*domain.Transfer, error) {
	reversal, err := uc.reverse(ctx, input)
	if uc.metrics != nil {
		if err != nil {
			uc.recordError(err)
		} else {
			uc.metrics.TransfersReversed.Inc()
		}
	}

	return reversal, err
}

func (uc *TransferUseCase) reverse(ctx context.Context, input ReverseTransferInput) (*domain.Transfer, error) {
	if input.TransferID == "" {
		return nil, domain.ErrTransferNotFound
	}

	ref, err := uc.allocator.Allocate(ctx)
	if err != nil {
		return nil, err
	}

	meta := withTraceID(input.Request)

	var result *domain.Transfer

	err = uc.uow.run(ctx, func(ctx context.Context, tx Transaction) error {
		result = nil

		// Locking the original first serializes concurrent reversals of it.
		original, err := uc.transferRepo.GetByIDForUpdate(ctx, tx, input.TransferID)
		if err != nil {
			return err
		}

		if original.CreatedBy != input.OwnerID {
			return domain.ErrTransferNotFound
		}

		if original.IsReversal() {
			return fmt.Errorf("%w: a reversal cannot be reversed", domain.ErrInvalidTransition)
		}

		if original.Status == domain.TransferStatusReversed {
			return domain.ErrTransferAlreadyReversed
		}

		if !original.CanTransition(domain.TransferStatusReversed) {
			return fmt.Errorf("%w: transfer is %s", domain.ErrInvalidTransition, original.Status)
		}

		accountIDs := []string{original.FromAccountID, original.ToAccountID}
		sort.Strings(accountIDs)

		accounts, err := uc.lockAccounts(ctx, tx, accountIDs)
		if err != nil {
			return err
		}

		receiver, sender := accounts[original.ToAccountID], accounts[original.FromAccountID]
		if !receiver.IsActive() || !sender.IsActive() {
			return domain.ErrAccountNotActive
		}

		// Funds may have moved on since the original transfer.
		debitSnap, err := receiver.Apply(domain.EntryTypeReversalDebit, original.Amount)
		if err != nil {
			return err
		}

		creditSnap, err := sender.Apply(domain.EntryTypeReversalCredit, original.Amount)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		originalID := original.ID
		reversal := &domain.Transfer{
			ID:                 uc.idGen.Generate(),
			FromAccountID:      receiver.ID,
			ToAccountID:        sender.ID,
			Amount:             original.Amount,
			Currency:           original.Currency,
			ReferenceID:        ref,
			CreatedBy:          input.OwnerID,
			Status:             domain.TransferStatusPendingReversal,
			OriginalTransferID: &originalID,
			Metadata:           domain.ReversalMetadata(original),
			CreatedAt:          now,
		}

		if err := uc.createTransfer(ctx, tx, reversal); err != nil {
			return err
		}

		if err := uc.writeLeg(ctx, tx, reversal, receiver, domain.EntryTypeReversalDebit, debitSnap, meta, now); err != nil {
			return err
		}

		if err := uc.writeLeg(ctx, tx, reversal, sender, domain.EntryTypeReversalCredit, creditSnap, meta, now); err != nil {
			return err
		}

		if err := reversal.Transition(domain.TransferStatusCompleted, now); err != nil {
			return err
		}

		if err := uc.transferRepo.UpdateStatus(ctx, tx, reversal); err != nil {
			return err
		}

		if err := original.Transition(domain.TransferStatusReversed, now); err != nil {
			return err
		}

		if err := uc.transferRepo.UpdateStatus(ctx, tx, original); err != nil {
			return err
		}

		event := domain.NewTransferEvent(uc.idGen.Generate(), domain.EventTypeTransferReversed, reversal, now)
		if err := uc.outboxRepo.Create(ctx, tx, event); err != nil {
			return err
		}

		result = reversal
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetTransfer retrieves a transfer by ID.
func (uc *TransferUseCase) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return uc.transferRepo.GetByID(ctx, id)
}

// ListByAccount lists the transfers touching an account the caller owns.
func (uc *TransferUseCase) ListByAccount(ctx context.Context, input ListTransfersInput) ([]*domain.Transfer, error) {
	account, err := uc.accountRepo.GetByID(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}

	if !account.OwnedBy(input.OwnerID) {
		return nil, domain.ErrAccountNotFound
	}

	limit, offset, _ := domain.ValidatePagination(input.Limit, input.Offset)

	return uc.transferRepo.ListByAccount(ctx, input.AccountID, limit, offset)
}

func (uc *TransferUseCase) lockAccounts(ctx context.Context, tx Transaction, ids []string) (map[string]*domain.Account, error) {
	accounts, err := uc.accountRepo.GetByIDsForUpdate(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}

	for _, id := range ids {
		if byID[id] == nil {
			return nil, domain.ErrAccountNotFound
		}
	}

	return byID, nil
}

func (uc *TransferUseCase) createTransfer(ctx context.Context, tx Transaction, transfer *domain.Transfer) error {
	if err := uc.transferRepo.Create(ctx, tx, transfer); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			return fmt.Errorf("%w: %s", domain.ErrReferenceConflict, transfer.ReferenceID)
		}
		return err
	}
	return nil
}

// writeLeg persists one side of a transfer: the account's new balances and its entry.
func (uc *TransferUseCase) writeLeg(
	ctx context.Context,
	tx Transaction,
	transfer *domain.Transfer,
	account *domain.Account,
	op domain.EntryType,
	snap domain.BalanceSnapshot,
	meta domain.RequestMeta,
	now time.Time,
) error {
	account.UpdatedAt = now
	if err := uc.accountRepo.Update(ctx, tx, account); err != nil {
		return err
	}

	entry := domain.NewLedgerEntry(
		uc.idGen.Generate(),
		account,
		op,
		transfer.Amount,
		transfer.ReferenceID,
		snap,
		meta.EntryMetadata(op, transfer.ReferenceID, now),
		now,
	)
	entry.TransferID = transfer.ID

	if err := uc.entryRepo.Create(ctx, tx, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			return fmt.Errorf("%w: %s", domain.ErrReferenceConflict, transfer.ReferenceID)
		}
		return err
	}

	return nil
}

// findByReference looks a caller-supplied reference up, inside tx when one is given.
// A reference already spent on a single-account operation is a conflict.
func (uc *TransferUseCase) findByReference(ctx context.Context, tx Transaction, ref string) (*domain.Transfer, error) {
	var (
		transfer *domain.Transfer
		entries  []*domain.LedgerEntry
		err      error
	)

	if tx != nil {
		transfer, err = uc.transferRepo.GetByReferenceTx(ctx, tx, ref)
	} else {
		transfer, err = uc.transferRepo.GetByReference(ctx, ref)
	}
	if err == nil {
		return transfer, nil
	}
	if !errors.Is(err, domain.ErrTransferNotFound) {
		return nil, err
	}

	if tx != nil {
		entries, err = uc.entryRepo.GetByReferenceTx(ctx, tx, ref)
	} else {
		entries, err = uc.entryRepo.GetByReference(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrReferenceConflict, ref)
	}

	return nil, nil
}

func matchTransfer(existing *domain.Transfer, input TransferInput, currency string) (*domain.Transfer, error) {
	if existing.IsReversal() ||
		existing.CreatedBy != input.OwnerID ||
		existing.FromAccountID != input.FromAccountID ||
		existing.ToAccountID != input.ToAccountID ||
		existing.Amount != input.Amount ||
		existing.Currency != currency {
		return nil, fmt.Errorf("%w: %s", domain.ErrReferenceConflict, input.ReferenceID)
	}

	return existing, nil
}

func (uc *TransferUseCase) recordError(err error) {
	kind := domain.KindOf(err)
	uc.metrics.TransferErrors.WithLabelValues(strings.ToLower(kind.String())).Inc()
	if kind == domain.KindContention {
		uc.metrics.LockContention.WithLabelValues("transfer").Inc()
	}
}
