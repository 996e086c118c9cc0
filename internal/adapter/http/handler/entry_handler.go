package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/walletledger/internal/adapter/http/dto"
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// EntryService defines the ledger queries.
type EntryService interface {
	GetEntriesByAccount(ctx context.Context, input usecase.GetEntriesByAccountInput) ([]*domain.LedgerEntry, error)
	GetEntriesByReference(ctx context.Context, ownerID, referenceID string) ([]*domain.LedgerEntry, error)
	GetEntriesByTransfer(ctx context.Context, ownerID, transferID string) ([]*domain.LedgerEntry, error)
}

// EntryHandler handles entry-related HTTP requests.
type EntryHandler struct {
	entryUC EntryService
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(entryUC EntryService) *EntryHandler {
	return &EntryHandler{entryUC: entryUC}
}

// ListByAccount lists entries for an account, newest first.
func (h *EntryHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, domain.KindInvalidRequest, "missing account ID", "")
		return
	}

	page := parsePagination(r)
	entries, err := h.entryUC.GetEntriesByAccount(r.Context(), usecase.GetEntriesByAccountInput{
		OwnerID:   owner,
		AccountID: accountID,
		Limit:     page.Limit,
		Offset:    page.Offset,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListEntriesResponse{Entries: dto.EntriesFromDomain(entries)})
}

// GetByReference returns the caller's entries recorded under a reference id.
func (h *EntryHandler) GetByReference(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	ref := chi.URLParam(r, "referenceId")
	if ref == "" {
		writeError(w, http.StatusBadRequest, domain.KindInvalidRequest, "missing reference ID", "")
		return
	}

	entries, err := h.entryUC.GetEntriesByReference(r.Context(), owner, ref)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListEntriesResponse{Entries: dto.EntriesFromDomain(entries)})
}

// ListByTransfer lists entries for a transfer.
func (h *EntryHandler) ListByTransfer(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	transferID := chi.URLParam(r, "id")
	if transferID == "" {
		writeError(w, http.StatusBadRequest, domain.KindInvalidRequest, "missing transfer ID", "")
		return
	}

	entries, err := h.entryUC.GetEntriesByTransfer(r.Context(), owner, transferID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListEntriesResponse{Entries: dto.EntriesFromDomain(entries)})
}
