package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iho/walletledger/internal/domain"
)

// ReconciliationUseCase handles balance reconciliation operations
type ReconciliationUseCase struct {
	accountRepo AccountRepository
	entryRepo   EntryRepository
	ledger      *LedgerUseCase
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(
	accountRepo AccountRepository,
	entryRepo EntryRepository,
	ledger *LedgerUseCase,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		ledger:      ledger,
	}
}

// ReconciliationResult compares an account's stored balances with the
// after-snapshot of its most recent ledger entry.
type ReconciliationResult struct {
	AccountID         string
	RecordedAvailable int64
	RecordedPending   int64
	LedgerAvailable   int64
	LedgerPending     int64
	IsReconciled      bool
	LastChecked       time.Time
}

// ReconcileAccount checks one account against its ledger history.
// An account with no entries must hold nothing.
func (uc *ReconciliationUseCase) ReconcileAccount(ctx context.Context, accountID string) (*ReconciliationResult, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return uc.reconcile(ctx, account)
}

func (uc *ReconciliationUseCase) reconcile(ctx context.Context, account *domain.Account) (*ReconciliationResult, error) {
	result := &ReconciliationResult{
		AccountID:         account.ID,
		RecordedAvailable: account.Available,
		RecordedPending:   account.Pending,
		LastChecked:       time.Now().UTC(),
	}

	latest, err := uc.entryRepo.GetLatestByAccount(ctx, account.ID)
	switch {
	case errors.Is(err, domain.ErrEntryNotFound):
	case err != nil:
		return nil, err
	default:
		result.LedgerAvailable = latest.AvailableAfter
		result.LedgerPending = latest.PendingAfter
	}

	result.IsReconciled = result.RecordedAvailable == result.LedgerAvailable &&
		result.RecordedPending == result.LedgerPending

	return result, nil
}

// ReconcileAllAccounts reconciles all accounts in the system
func (uc *ReconciliationUseCase) ReconcileAllAccounts(ctx context.Context) ([]*ReconciliationResult, error) {
	var results []*ReconciliationResult

	for offset := 0; ; offset += reconciliationPageSize {
		accounts, err := uc.accountRepo.List(ctx, reconciliationPageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, account := range accounts {
			result, err := uc.reconcile(ctx, account)
			if err != nil {
				return nil, fmt.Errorf("failed to reconcile account %s: %w", account.ID, err)
			}
			results = append(results, result)
		}

		if len(accounts) < reconciliationPageSize {
			return results, nil
		}
	}
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalAccounts      int
	ReconciledAccounts int
	Discrepancies      []*ReconciliationResult
	LedgerConsistent   bool
	TotalBalances      int64
	TotalEntries       int64
	CheckedAt          time.Time
}

// GenerateReconciliationReport generates a comprehensive reconciliation report
func (uc *ReconciliationUseCase) GenerateReconciliationReport(ctx context.Context) (*ReconciliationReport, error) {
	results, err := uc.ReconcileAllAccounts(ctx)
	if err != nil {
		return nil, err
	}

	consistency, err := uc.ledger.CheckConsistency(ctx)
	if err != nil && !errors.Is(err, ErrInconsistentLedger) {
		return nil, err
	}

	report := &ReconciliationReport{
		TotalAccounts:    len(results),
		Discrepancies:    make([]*ReconciliationResult, 0),
		LedgerConsistent: consistency.Consistent,
		TotalBalances:    consistency.TotalBalances,
		TotalEntries:     consistency.TotalEntries,
		CheckedAt:        time.Now().UTC(),
	}

	for _, result := range results {
		if result.IsReconciled {
			report.ReconciledAccounts++
		} else {
			report.Discrepancies = append(report.Discrepancies, result)
		}
	}

	return report, nil
}
