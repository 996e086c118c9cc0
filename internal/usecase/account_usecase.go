package usecase

import (
	"context"
	"time"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/metrics"
)

// AccountUseCase handles account business logic.
type AccountUseCase struct {
	uow         unitOfWork
	accountRepo AccountRepository
	outboxRepo  OutboxRepository
	idGen       IDGenerator
	metrics     *metrics.Metrics
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	m *metrics.Metrics,
	opts ...Option,
) *AccountUseCase {
	return &AccountUseCase{
		uow:         newUnitOfWork(txManager, opts),
		accountRepo: accountRepo,
		outboxRepo:  outboxRepo,
		idGen:       idGen,
		metrics:     m,
	}
}

// CreateAccountInput represents input for creating an account.
type CreateAccountInput struct {
	OwnerID  string
	Currency string
}

// CreateAccount opens an ACTIVE account with zero balances. An owner holds at
// most one account per currency.
func (uc *AccountUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	if input.OwnerID == "" {
		return nil, domain.ErrUnauthenticated
	}

	currency, err := domain.NormalizeCurrency(input.Currency)
	if err != nil {
		return nil, err
	}

	var account *domain.Account

	err = uc.uow.run(ctx, func(ctx context.Context, tx Transaction) error {
		now := time.Now().UTC()
		account = domain.NewAccount(uc.idGen.Generate(), input.OwnerID, currency, now)

		if err := uc.accountRepo.Create(ctx, tx, account); err != nil {
			return err
		}

		event := domain.NewAccountEvent(uc.idGen.Generate(), domain.EventTypeAccountCreated, account, now)
		return uc.outboxRepo.Create(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AccountsCreated.Inc()
	}

	return account, nil
}

// GetAccount retrieves an account the caller owns. Accounts of other owners are
// reported as not found.
func (uc *AccountUseCase) GetAccount(ctx context.Context, ownerID, id string) (*domain.Account, error) {
	account, err := uc.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !account.OwnedBy(ownerID) {
		return nil, domain.ErrAccountNotFound
	}

	return account, nil
}

// ListAccountsInput represents input for listing accounts.
type ListAccountsInput struct {
	OwnerID string
	Limit   int
	Offset  int
}

// ListAccounts lists the caller's accounts with pagination.
func (uc *AccountUseCase) ListAccounts(ctx context.Context, input ListAccountsInput) ([]*domain.Account, error) {
	limit, offset, _ := domain.ValidatePagination(input.Limit, input.Offset)
	return uc.accountRepo.ListByOwner(ctx, input.OwnerID, limit, offset)
}

// UpdateAccountStatusInput represents input for changing an account's status.
type UpdateAccountStatusInput struct {
	OwnerID   string
	AccountID string
	Status    string
}

// UpdateAccountStatus enables, disables or closes an account.
func (uc *AccountUseCase) UpdateAccountStatus(ctx context.Context, input UpdateAccountStatusInput) (*domain.Account, error) {
	status, err := domain.ParseAccountStatus(input.Status)
	if err != nil {
		return nil, err
	}

	var (
		account *domain.Account
		changed bool
	)

	err = uc.uow.run(ctx, func(ctx context.Context, tx Transaction) error {
		account, changed = nil, false

		acc, err := uc.accountRepo.GetByIDForUpdate(ctx, tx, input.AccountID)
		if err != nil {
			return err
		}

		if !acc.OwnedBy(input.OwnerID) {
			return domain.ErrAccountNotFound
		}

		if acc.Status == status {
			account = acc
			return nil
		}

		now := time.Now().UTC()
		if err := acc.ChangeStatus(status, now); err != nil {
			return err
		}

		if err := uc.accountRepo.Update(ctx, tx, acc); err != nil {
			return err
		}

		event := domain.NewAccountEvent(uc.idGen.Generate(), domain.EventTypeAccountStatusChanged, acc, now)
		if err := uc.outboxRepo.Create(ctx, tx, event); err != nil {
			return err
		}

		account, changed = acc, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed && uc.metrics != nil {
		uc.metrics.AccountStatusChanges.WithLabelValues(string(status)).Inc()
	}

	return account, nil
}
