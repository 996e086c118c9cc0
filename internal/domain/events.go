package domain

import "time"

// Event types
const (
	EventTypeAccountCreated       = "account.created"
	EventTypeAccountStatusChanged = "account.status_changed"
	EventTypeBalanceCredited      = "balance.credited"
	EventTypeBalanceDebited       = "balance.debited"
	EventTypeBalanceHeld          = "balance.held"
	EventTypeBalanceCaptured      = "balance.captured"
	EventTypeBalanceReleased      = "balance.released"
	EventTypeTransferCompleted    = "transfer.completed"
	EventTypeTransferReversed     = "transfer.reversed"
)

// Aggregate types
const (
	AggregateTypeAccount  = "account"
	AggregateTypeTransfer = "transfer"
)

// BalanceEventType maps a single-account operation to the event it emits.
func BalanceEventType(op EntryType) string {
	switch op {
	case EntryTypeCredit:
		return EventTypeBalanceCredited
	case EntryTypeDebit:
		return EventTypeBalanceDebited
	case EntryTypePendingDebit:
		return EventTypeBalanceHeld
	case EntryTypeCapture:
		return EventTypeBalanceCaptured
	case EntryTypeRelease:
		return EventTypeBalanceReleased
	default:
		return ""
	}
}

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewAccountEvent builds an event about account state.
func NewAccountEvent(id, eventType string, account *Account, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   account.ID,
		AggregateType: AggregateTypeAccount,
		EventType:     eventType,
		Payload: map[string]any{
			"account_id": account.ID,
			"owner_id":   account.OwnerID,
			"currency":   account.Currency,
			"status":     string(account.Status),
		},
		CreatedAt: now,
	}
}

// NewBalanceEvent builds the event for a committed single-account operation.
func NewBalanceEvent(id string, entry *LedgerEntry) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   entry.AccountID,
		AggregateType: AggregateTypeAccount,
		EventType:     BalanceEventType(entry.Type),
		Payload: map[string]any{
			"entry_id":        entry.ID,
			"account_id":      entry.AccountID,
			"reference_id":    entry.ReferenceID,
			"type":            string(entry.Type),
			"amount":          entry.Amount,
			"currency":        entry.Currency,
			"available_after": entry.AvailableAfter,
			"pending_after":   entry.PendingAfter,
		},
		CreatedAt: entry.CreatedAt,
	}
}

// NewTransferEvent builds a transfer.completed or transfer.reversed event.
func NewTransferEvent(id, eventType string, transfer *Transfer, now time.Time) *OutboxEvent {
	payload := map[string]any{
		"transfer_id":     transfer.ID,
		"from_account_id": transfer.FromAccountID,
		"to_account_id":   transfer.ToAccountID,
		"amount":          transfer.Amount,
		"currency":        transfer.Currency,
		"reference_id":    transfer.ReferenceID,
		"status":          string(transfer.Status),
	}
	if transfer.OriginalTransferID != nil {
		payload["original_transfer_id"] = *transfer.OriginalTransferID
	}

	return &OutboxEvent{
		ID:            id,
		AggregateID:   transfer.ID,
		AggregateType: AggregateTypeTransfer,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}
}
