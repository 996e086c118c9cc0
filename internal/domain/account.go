package domain

import (
	"fmt"
	"math"
	"time"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusDisabled AccountStatus = "DISABLED"
	AccountStatusClosed   AccountStatus = "CLOSED"
)

// ParseAccountStatus validates a status string.
func ParseAccountStatus(s string) (AccountStatus, error) {
	switch st := AccountStatus(s); st {
	case AccountStatusActive, AccountStatusDisabled, AccountStatusClosed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Account holds the two balances of one owner in one currency.
// Balances are minor units and never negative.
type Account struct {
	ID        string
	OwnerID   string
	Currency  string
	Status    AccountStatus
	Available int64
	Pending   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount returns an ACTIVE account with zero balances.
func NewAccount(id, ownerID, currency string, now time.Time) *Account {
	return &Account{
		ID:        id,
		OwnerID:   ownerID,
		Currency:  currency,
		Status:    AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the account accepts balance mutations.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// OwnedBy reports whether ownerID controls the account.
func (a *Account) OwnedBy(ownerID string) bool {
	return ownerID != "" && a.OwnerID == ownerID
}

// BalanceSnapshot captures both balances around a single mutation.
type BalanceSnapshot struct {
	AvailableBefore int64
	AvailableAfter  int64
	PendingBefore   int64
	PendingAfter    int64
}

// Apply validates and applies the balance transition for op, mutating the account
// only when every precondition holds.
func (a *Account) Apply(op EntryType, amount int64) (BalanceSnapshot, error) {
	if amount <= 0 {
		return BalanceSnapshot{}, ErrInvalidAmount
	}

	snap := BalanceSnapshot{
		AvailableBefore: a.Available,
		AvailableAfter:  a.Available,
		PendingBefore:   a.Pending,
		PendingAfter:    a.Pending,
	}

	switch op {
	case EntryTypeCredit, EntryTypeReversalCredit:
		if a.Available > math.MaxInt64-amount {
			return BalanceSnapshot{}, ErrBalanceOverflow
		}
		snap.AvailableAfter = a.Available + amount

	case EntryTypeDebit, EntryTypeReversalDebit:
		if a.Available < amount {
			return BalanceSnapshot{}, ErrInsufficientFunds
		}
		snap.AvailableAfter = a.Available - amount

	case EntryTypePendingDebit:
		if a.Available < amount {
			return BalanceSnapshot{}, ErrInsufficientFunds
		}
		if a.Pending > math.MaxInt64-amount {
			return BalanceSnapshot{}, ErrBalanceOverflow
		}
		snap.AvailableAfter = a.Available - amount
		snap.PendingAfter = a.Pending + amount

	case EntryTypeCapture:
		// Capture is asserted against available but settles the hold in pending.
		if a.Available < amount {
			return BalanceSnapshot{}, ErrInsufficientFunds
		}
		if a.Pending < amount {
			return BalanceSnapshot{}, ErrInsufficientPendingFunds
		}
		snap.PendingAfter = a.Pending - amount

	case EntryTypeRelease:
		if a.Pending < amount {
			return BalanceSnapshot{}, ErrInsufficientPendingFunds
		}
		if a.Available > math.MaxInt64-amount {
			return BalanceSnapshot{}, ErrBalanceOverflow
		}
		snap.PendingAfter = a.Pending - amount
		snap.AvailableAfter = a.Available + amount

	default:
		return BalanceSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownEntryType, op)
	}

	a.Available = snap.AvailableAfter
	a.Pending = snap.PendingAfter

	return snap, nil
}

// ChangeStatus moves the account to next. CLOSED is terminal and requires empty balances.
func (a *Account) ChangeStatus(next AccountStatus, now time.Time) error {
	if a.Status == next {
		return nil
	}

	if a.Status == AccountStatusClosed {
		return fmt.Errorf("%w: account is closed", ErrInvalidStatusTransition)
	}

	if next == AccountStatusClosed && (a.Available != 0 || a.Pending != 0) {
		return ErrAccountHasBalance
	}

	a.Status = next
	a.UpdatedAt = now

	return nil
}
