package dto

import (
	"time"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// AccountResponse represents an account in API responses. Balances are minor
// units; the *_display fields render them in major units.
type AccountResponse struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	Available        int64     `json:"available"`
	Pending          int64     `json:"pending"`
	AvailableDisplay string    `json:"available_display"`
	PendingDisplay   string    `json:"pending_display"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:               a.ID,
		OwnerID:          a.OwnerID,
		Currency:         a.Currency,
		Status:           string(a.Status),
		Available:        a.Available,
		Pending:          a.Pending,
		AvailableDisplay: domain.FormatMinorUnits(a.Available, a.Currency),
		PendingDisplay:   domain.FormatMinorUnits(a.Pending, a.Currency),
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// ListAccountsResponse is a page of accounts.
type ListAccountsResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// TransferResponse represents a transfer in API responses.
type TransferResponse struct {
	ID                 string         `json:"id"`
	FromAccountID      string         `json:"from_account_id"`
	ToAccountID        string         `json:"to_account_id"`
	Amount             int64          `json:"amount"`
	AmountDisplay      string         `json:"amount_display"`
	Currency           string         `json:"currency"`
	Status             string         `json:"status"`
	ReferenceID        string         `json:"reference_id"`
	CreatedBy          string         `json:"created_by"`
	OriginalTransferID *string        `json:"original_transfer_id,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// TransferFromDomain converts domain transfer to response.
func TransferFromDomain(t *domain.Transfer) *TransferResponse {
	return &TransferResponse{
		ID:                 t.ID,
		FromAccountID:      t.FromAccountID,
		ToAccountID:        t.ToAccountID,
		Amount:             t.Amount,
		AmountDisplay:      domain.FormatMinorUnits(t.Amount, t.Currency),
		Currency:           t.Currency,
		Status:             string(t.Status),
		ReferenceID:        t.ReferenceID,
		CreatedBy:          t.CreatedBy,
		OriginalTransferID: t.OriginalTransferID,
		Metadata:           t.Metadata,
		CreatedAt:          t.CreatedAt,
		CompletedAt:        t.CompletedAt,
	}
}

// TransfersFromDomain converts domain transfers to responses.
func TransfersFromDomain(transfers []*domain.Transfer) []*TransferResponse {
	result := make([]*TransferResponse, len(transfers))
	for i, t := range transfers {
		result[i] = TransferFromDomain(t)
	}
	return result
}

// ListTransfersResponse is a page of transfers.
type ListTransfersResponse struct {
	Transfers []*TransferResponse `json:"transfers"`
	Limit     int                 `json:"limit"`
	Offset    int                 `json:"offset"`
}

// EntryResponse represents a ledger entry in API responses. Amount is signed.
type EntryResponse struct {
	ID              string         `json:"id"`
	AccountID       string         `json:"account_id"`
	TransferID      string         `json:"transfer_id,omitempty"`
	ReferenceID     string         `json:"reference_id"`
	Type            string         `json:"type"`
	Status          string         `json:"status"`
	Amount          int64          `json:"amount"`
	AmountDisplay   string         `json:"amount_display"`
	Currency        string         `json:"currency"`
	AvailableBefore int64          `json:"available_before"`
	AvailableAfter  int64          `json:"available_after"`
	PendingBefore   int64          `json:"pending_before"`
	PendingAfter    int64          `json:"pending_after"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// EntryFromDomain converts domain entry to response.
func EntryFromDomain(e *domain.LedgerEntry) *EntryResponse {
	return &EntryResponse{
		ID:              e.ID,
		AccountID:       e.AccountID,
		TransferID:      e.TransferID,
		ReferenceID:     e.ReferenceID,
		Type:            string(e.Type),
		Status:          string(e.Status),
		Amount:          e.Amount,
		AmountDisplay:   domain.FormatMinorUnits(e.Amount, e.Currency),
		Currency:        e.Currency,
		AvailableBefore: e.AvailableBefore,
		AvailableAfter:  e.AvailableAfter,
		PendingBefore:   e.PendingBefore,
		PendingAfter:    e.PendingAfter,
		Metadata:        e.Metadata,
		CreatedAt:       e.CreatedAt,
	}
}

// EntriesFromDomain converts domain entries to responses.
func EntriesFromDomain(entries []*domain.LedgerEntry) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}
	return result
}

// ListEntriesResponse is a list of entries.
type ListEntriesResponse struct {
	Entries []*EntryResponse `json:"entries"`
}

// ConsistencyResponse reports the global ledger check.
type ConsistencyResponse struct {
	Status        string `json:"status"`
	Consistent    bool   `json:"consistent"`
	TotalBalances int64  `json:"total_balances"`
	TotalEntries  int64  `json:"total_entries"`
}

// ConsistencyFromResult converts the use case result.
func ConsistencyFromResult(r *usecase.ConsistencyResult) *ConsistencyResponse {
	status := "consistent"
	if !r.Consistent {
		status = "inconsistent"
	}

	return &ConsistencyResponse{
		Status:        status,
		Consistent:    r.Consistent,
		TotalBalances: r.TotalBalances,
		TotalEntries:  r.TotalEntries,
	}
}

// DiscrepancyResponse describes one account whose balances disagree with its log.
type DiscrepancyResponse struct {
	AccountID         string `json:"account_id"`
	RecordedAvailable int64  `json:"recorded_available"`
	RecordedPending   int64  `json:"recorded_pending"`
	LedgerAvailable   int64  `json:"ledger_available"`
	LedgerPending     int64  `json:"ledger_pending"`
}

// ReconciliationReportResponse is the full reconciliation report.
type ReconciliationReportResponse struct {
	TotalAccounts      int                    `json:"total_accounts"`
	ReconciledAccounts int                    `json:"reconciled_accounts"`
	Discrepancies      []*DiscrepancyResponse `json:"discrepancies"`
	LedgerConsistent   bool                   `json:"ledger_consistent"`
	TotalBalances      int64                  `json:"total_balances"`
	TotalEntries       int64                  `json:"total_entries"`
	CheckedAt          time.Time              `json:"checked_at"`
}

// ReconciliationReportFromUseCase converts the use case report.
func ReconciliationReportFromUseCase(r *usecase.ReconciliationReport) *ReconciliationReportResponse {
	discrepancies := make([]*DiscrepancyResponse, len(r.Discrepancies))
	for i, d := range r.Discrepancies {
		discrepancies[i] = &DiscrepancyResponse{
			AccountID:         d.AccountID,
			RecordedAvailable: d.RecordedAvailable,
			RecordedPending:   d.RecordedPending,
			LedgerAvailable:   d.LedgerAvailable,
			LedgerPending:     d.LedgerPending,
		}
	}

	return &ReconciliationReportResponse{
		TotalAccounts:      r.TotalAccounts,
		ReconciledAccounts: r.ReconciledAccounts,
		Discrepancies:      discrepancies,
		LedgerConsistent:   r.LedgerConsistent,
		TotalBalances:      r.TotalBalances,
		TotalEntries:       r.TotalEntries,
		CheckedAt:          r.CheckedAt,
	}
}

// ErrorResponse represents an error in API responses. Code is the stable error kind.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
