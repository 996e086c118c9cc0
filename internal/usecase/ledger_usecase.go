package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/iho/walletledger/internal/infrastructure/metrics"
)

var (
	// ErrInconsistentLedger is returned when stored balances disagree with the log.
	ErrInconsistentLedger = errors.New("ledger is inconsistent: balances do not match entries")
)

// LedgerUseCase handles ledger-wide operations.
type LedgerUseCase struct {
	ledgerRepo LedgerRepository
	metrics    *metrics.Metrics
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(ledgerRepo LedgerRepository, m *metrics.Metrics) *LedgerUseCase {
	return &LedgerUseCase{
		ledgerRepo: ledgerRepo,
		metrics:    m,
	}
}

// ConsistencyResult is the outcome of a global consistency check.
type ConsistencyResult struct {
	TotalBalances int64
	TotalEntries  int64
	Consistent    bool
}

// CheckConsistency verifies that the sum of every account's available and pending
// balance equals the signed sum of every entry that moved funds in or out.
// Holds and releases shift funds within one account and are left out.
func (uc *LedgerUseCase) CheckConsistency(ctx context.Context) (*ConsistencyResult, error) {
	totalBalances, totalEntries, err := uc.ledgerRepo.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}

	result := &ConsistencyResult{
		TotalBalances: totalBalances,
		TotalEntries:  totalEntries,
		Consistent:    totalBalances == totalEntries,
	}

	if uc.metrics != nil {
		if result.Consistent {
			uc.metrics.LedgerConsistent.Set(1)
		} else {
			uc.metrics.LedgerConsistent.Set(0)
		}
	}

	if !result.Consistent {
		return result, fmt.Errorf("%w: balances=%d entries=%d", ErrInconsistentLedger, totalBalances, totalEntries)
	}

	return result, nil
}
