package usecase

import (
	"context"
	"fmt"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/metrics"
)

// ReferenceChecker reports whether a reference id is already present in the ledger.
type ReferenceChecker interface {
	ReferenceExists(ctx context.Context, referenceID string) (bool, error)
}

// ReferenceAllocator mints reference ids that are unique across the ledger log.
type ReferenceAllocator struct {
	idGen       IDGenerator
	checker     ReferenceChecker
	maxAttempts int
	metrics     *metrics.Metrics
}

// NewReferenceAllocator creates a new ReferenceAllocator.
func NewReferenceAllocator(idGen IDGenerator, checker ReferenceChecker, m *metrics.Metrics) *ReferenceAllocator {
	return &ReferenceAllocator{
		idGen:       idGen,
		checker:     checker,
		maxAttempts: MaxReferenceAttempts,
		metrics:     m,
	}
}

// Allocate returns a fresh reference id, re-rolling on collision. Running out of
// attempts means the id source or the log is broken and is reported as
// domain.ErrAllocationExhausted.
func (a *ReferenceAllocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		ref := a.idGen.Generate()

		exists, err := a.checker.ReferenceExists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("check reference %s: %w", ref, err)
		}
		if !exists {
			return ref, nil
		}

		if a.metrics != nil {
			a.metrics.ReferenceCollisions.Inc()
		}
	}

	return "", fmt.Errorf("%w after %d attempts", domain.ErrAllocationExhausted, a.maxAttempts)
}
