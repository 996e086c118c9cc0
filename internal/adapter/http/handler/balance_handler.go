package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/walletledger/internal/adapter/http/dto"
	"github.com/iho/walletledger/internal/adapter/http/middleware"
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// BalanceService defines the single-account operations.
type BalanceService interface {
	Credit(ctx context.Context, input usecase.BalanceInput) (*domain.LedgerEntry, error)
	Debit(ctx context.Context, input usecase.BalanceInput) (*domain.LedgerEntry, error)
	PendingDebit(ctx context.Context, input usecase.BalanceInput) (*domain.LedgerEntry, error)
	Capture(ctx context.Context, input usecase.BalanceInput) (*domain.LedgerEntry, error)
	Release(ctx context.Context, input usecase.BalanceInput) (*domain.LedgerEntry, error)
}

type balanceOp func(ctx context.Context, input usecase.BalanceInput) (*domain.LedgerEntry, error)

// BalanceHandler handles credit, debit, pending-debit, capture and release.
// Each responds with the ledger entry that was recorded.
type BalanceHandler struct {
	balanceUC BalanceService
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(balanceUC BalanceService) *BalanceHandler {
	return &BalanceHandler{balanceUC: balanceUC}
}

// Credit adds funds to available.
func (h *BalanceHandler) Credit(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.balanceUC.Credit)
}

// Debit removes funds from available.
func (h *BalanceHandler) Debit(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.balanceUC.Debit)
}

// PendingDebit moves funds from available to pending.
func (h *BalanceHandler) PendingDebit(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.balanceUC.PendingDebit)
}

// Capture settles pending funds.
func (h *BalanceHandler) Capture(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.balanceUC.Capture)
}

// Release returns pending funds to available.
func (h *BalanceHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.balanceUC.Release)
}

func (h *BalanceHandler) apply(w http.ResponseWriter, r *http.Request, op balanceOp) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, domain.KindInvalidRequest, "missing account ID", "")
		return
	}

	var req dto.BalanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input := req.ToUseCaseInput(owner, accountID,
		r.Header.Get(middleware.IdempotencyKeyHeader),
		middleware.RequestMetaFromContext(r.Context()))

	entry, err := op(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.EntryFromDomain(entry))
}
