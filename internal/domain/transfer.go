package domain

import (
	"fmt"
	"time"
)

// TransferStatus is a state of the transfer state machine.
type TransferStatus string

const (
	TransferStatusPending         TransferStatus = "PENDING"
	TransferStatusCompleted       TransferStatus = "COMPLETED"
	TransferStatusFailed          TransferStatus = "FAILED"
	TransferStatusReversed        TransferStatus = "REVERSED"
	TransferStatusPendingReversal TransferStatus = "PENDING_REVERSAL"
)

// Transfer represents a money movement between two accounts.
type Transfer struct {
	CreatedAt          time.Time
	CompletedAt        *time.Time
	Metadata           map[string]any
	ID                 string
	FromAccountID      string
	ToAccountID        string
	Currency           string
	ReferenceID        string
	CreatedBy          string
	Status             TransferStatus
	Amount             int64
	OriginalTransferID *string
}

// Validate validates transfer request.
func (t *Transfer) Validate() error {
	if t.FromAccountID == t.ToAccountID {
		return ErrSameAccount
	}

	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}

	return ValidateCurrency(t.Currency)
}

// IsReversal reports whether the transfer compensates another one.
func (t *Transfer) IsReversal() bool {
	return t.OriginalTransferID != nil
}

// CanTransition reports whether the state machine allows moving to next.
func (t *Transfer) CanTransition(next TransferStatus) bool {
	switch t.Status {
	case TransferStatusPending:
		return !t.IsReversal() && (next == TransferStatusCompleted || next == TransferStatusFailed)
	case TransferStatusPendingReversal:
		return next == TransferStatusCompleted
	case TransferStatusCompleted:
		return !t.IsReversal() && next == TransferStatusReversed
	default:
		return false
	}
}

// Transition moves the transfer to next or reports why it cannot.
func (t *Transfer) Transition(next TransferStatus, now time.Time) error {
	if t.Status == TransferStatusReversed && next == TransferStatusReversed {
		return ErrTransferAlreadyReversed
	}

	if !t.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}

	t.Status = next
	if next == TransferStatusCompleted {
		completedAt := now
		t.CompletedAt = &completedAt
	}

	return nil
}

// ReversalMetadata snapshots the original transfer into the metadata of its reversal.
func ReversalMetadata(original *Transfer) map[string]any {
	var completedAt any
	if original.CompletedAt != nil {
		completedAt = original.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	return map[string]any{
		"action":                   "REVERSAL",
		"original_transfer_id":     original.ID,
		"original_transfer_status": string(original.Status),
		"original_amount":          original.Amount,
		"original_currency":        original.Currency,
		"original_created_at":      original.CreatedAt.UTC().Format(time.RFC3339Nano),
		"original_completed_at":    completedAt,
		"original_meta":            original.Metadata,
		"original_created_by":      original.CreatedBy,
		"original_to_account":      original.ToAccountID,
		"original_from_account":    original.FromAccountID,
	}
}
