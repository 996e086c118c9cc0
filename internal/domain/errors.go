package domain

import "errors"

var (
	// Account errors
	ErrAccountNotFound         = errors.New("account not found")
	ErrAccountNotActive        = errors.New("account is not active")
	ErrDuplicateAccount        = errors.New("account already exists for this currency")
	ErrAccountHasBalance       = errors.New("account still holds funds")
	ErrInvalidStatusTransition = errors.New("invalid account status transition")

	// Balance errors
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrInsufficientPendingFunds = errors.New("insufficient pending funds")
	ErrBalanceOverflow          = errors.New("balance overflow")

	// Transfer errors
	ErrSameAccount             = errors.New("cannot transfer to same account")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrCurrencyMismatch        = errors.New("currency mismatch")
	ErrTransferNotFound        = errors.New("transfer not found")
	ErrTransferAlreadyReversed = errors.New("transfer has already been reversed")
	ErrInvalidTransition       = errors.New("invalid transfer status transition")

	// Ledger errors
	ErrEntryNotFound       = errors.New("ledger entry not found")
	ErrDuplicateReference  = errors.New("reference id already used")
	ErrReferenceConflict   = errors.New("reference id reused with different arguments")
	ErrUnknownEntryType    = errors.New("unknown ledger entry type")
	ErrAllocationExhausted = errors.New("unable to allocate a unique reference id")

	// Concurrency errors
	ErrContention = errors.New("resource is locked by a concurrent operation, retry later")

	// Identity errors
	ErrUnauthenticated = errors.New("caller identity could not be resolved")
)

// ErrorKind is the stable, caller-facing classification of an error.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindInvalidRequest
	KindInsufficientFunds
	KindConflict
	KindContention
	KindAllocationExhausted
	KindUnauthenticated
)

var kindNames = map[ErrorKind]string{
	KindInternal:            "INTERNAL",
	KindNotFound:            "NOT_FOUND",
	KindInvalidRequest:      "INVALID_REQUEST",
	KindInsufficientFunds:   "INSUFFICIENT_FUNDS",
	KindConflict:            "CONFLICT",
	KindContention:          "CONTENTION",
	KindAllocationExhausted: "ALLOCATION_EXHAUSTED",
	KindUnauthenticated:     "UNAUTHENTICATED",
}

// String returns the error code used on the wire.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInternal]
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrContention):
		return KindContention
	case errors.Is(err, ErrAllocationExhausted):
		return KindAllocationExhausted
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrTransferNotFound),
		errors.Is(err, ErrEntryNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientPendingFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrDuplicateAccount),
		errors.Is(err, ErrDuplicateReference),
		errors.Is(err, ErrReferenceConflict),
		errors.Is(err, ErrTransferAlreadyReversed),
		errors.Is(err, ErrInvalidTransition):
		return KindConflict
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountTooLarge),
		errors.Is(err, ErrBalanceOverflow),
		errors.Is(err, ErrCurrencyMismatch),
		errors.Is(err, ErrInvalidCurrency),
		errors.Is(err, ErrAccountNotActive),
		errors.Is(err, ErrAccountHasBalance),
		errors.Is(err, ErrInvalidStatusTransition),
		errors.Is(err, ErrSameAccount),
		errors.Is(err, ErrMetadataTooLarge),
		errors.Is(err, ErrInvalidMetadata),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrUnknownEntryType):
		return KindInvalidRequest
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return KindOf(err) == KindContention
}
