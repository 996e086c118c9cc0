package domain

import (
	"time"
)

// EntryType is the kind of balance movement an entry records.
type EntryType string

const (
	EntryTypeCredit         EntryType = "CREDIT"
	EntryTypeDebit          EntryType = "DEBIT"
	EntryTypePendingDebit   EntryType = "PENDING_DEBIT"
	EntryTypeCapture        EntryType = "CAPTURE"
	EntryTypeRelease        EntryType = "RELEASE"
	EntryTypeReversalDebit  EntryType = "REVERSAL_DEBIT"
	EntryTypeReversalCredit EntryType = "REVERSAL_CREDIT"
)

// EntryStatus records whether an entry is settled or held.
type EntryStatus string

const (
	EntryStatusConfirmed EntryStatus = "CONFIRMED"
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusFailed    EntryStatus = "FAILED"
)

// SignedAmount returns amount with the sign the entry type carries in the log.
func (t EntryType) SignedAmount(amount int64) int64 {
	switch t {
	case EntryTypeCredit, EntryTypeRelease, EntryTypeReversalCredit:
		return amount
	default:
		return -amount
	}
}

// Status returns the entry status written for this type.
func (t EntryType) Status() EntryStatus {
	if t == EntryTypePendingDebit {
		return EntryStatusPending
	}
	return EntryStatusConfirmed
}

// MovesFundsExternally reports whether the type changes available+pending.
// Holds and releases only shift funds between the two balances of one account.
func (t EntryType) MovesFundsExternally() bool {
	return t != EntryTypePendingDebit && t != EntryTypeRelease
}

// LedgerEntry is one immutable line of the ledger log.
type LedgerEntry struct {
	ID              string
	AccountID       string
	OwnerID         string
	TransferID      string
	ReferenceID     string
	Type            EntryType
	Status          EntryStatus
	Amount          int64
	Currency        string
	AvailableBefore int64
	AvailableAfter  int64
	PendingBefore   int64
	PendingAfter    int64
	Metadata        map[string]any
	CreatedAt       time.Time
}

// AbsAmount returns the unsigned amount of the entry.
func (e *LedgerEntry) AbsAmount() int64 {
	if e.Amount < 0 {
		return -e.Amount
	}
	return e.Amount
}

// NewLedgerEntry builds the entry recording op on account with the given snapshot.
func NewLedgerEntry(id string, account *Account, op EntryType, amount int64, referenceID string, snap BalanceSnapshot, metadata map[string]any, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		ID:              id,
		AccountID:       account.ID,
		OwnerID:         account.OwnerID,
		ReferenceID:     referenceID,
		Type:            op,
		Status:          op.Status(),
		Amount:          op.SignedAmount(amount),
		Currency:        account.Currency,
		AvailableBefore: snap.AvailableBefore,
		AvailableAfter:  snap.AvailableAfter,
		PendingBefore:   snap.PendingBefore,
		PendingAfter:    snap.PendingAfter,
		Metadata:        metadata,
		CreatedAt:       now,
	}
}
