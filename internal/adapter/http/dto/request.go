package dto

import (
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// CreateAccountRequest represents a request to create an account.
type CreateAccountRequest struct {
	Currency string `json:"currency"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateAccountRequest) ToUseCaseInput(ownerID string) usecase.CreateAccountInput {
	return usecase.CreateAccountInput{
		OwnerID:  ownerID,
		Currency: r.Currency,
	}
}

// UpdateAccountStatusRequest changes an account's lifecycle state.
type UpdateAccountStatusRequest struct {
	Status string `json:"status"`
}

// ToUseCaseInput converts to use case input.
func (r *UpdateAccountStatusRequest) ToUseCaseInput(ownerID, accountID string) usecase.UpdateAccountStatusInput {
	return usecase.UpdateAccountStatusInput{
		OwnerID:   ownerID,
		AccountID: accountID,
		Status:    r.Status,
	}
}

// BalanceRequest is the body of credit, debit, pending-debit, capture and release.
// Amount is in minor units.
type BalanceRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// ToUseCaseInput converts to use case input. fallbackRef is used when the body
// carries no reference id.
func (r *BalanceRequest) ToUseCaseInput(ownerID, accountID, fallbackRef string, meta domain.RequestMeta) usecase.BalanceInput {
	ref := r.ReferenceID
	if ref == "" {
		ref = fallbackRef
	}

	return usecase.BalanceInput{
		Request:     meta,
		OwnerID:     ownerID,
		AccountID:   accountID,
		Currency:    r.Currency,
		ReferenceID: ref,
		Amount:      r.Amount,
	}
}

// CreateTransferRequest represents a request to create a transfer.
type CreateTransferRequest struct {
	FromAccountID string         `json:"from_account_id"`
	ToAccountID   string         `json:"to_account_id"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	ReferenceID   string         `json:"reference_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateTransferRequest) ToUseCaseInput(ownerID, fallbackRef string, meta domain.RequestMeta) usecase.TransferInput {
	ref := r.ReferenceID
	if ref == "" {
		ref = fallbackRef
	}

	return usecase.TransferInput{
		Request:       meta,
		Metadata:      r.Metadata,
		OwnerID:       ownerID,
		FromAccountID: r.FromAccountID,
		ToAccountID:   r.ToAccountID,
		Currency:      r.Currency,
		ReferenceID:   ref,
		Amount:        r.Amount,
	}
}

// PaginationRequest represents pagination parameters.
type PaginationRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
