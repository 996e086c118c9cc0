package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/iho/walletledger/internal/adapter/http/dto"
	"github.com/iho/walletledger/internal/usecase"
)

// LedgerService defines the global consistency check.
type LedgerService interface {
	CheckConsistency(ctx context.Context) (*usecase.ConsistencyResult, error)
}

// ReconciliationService defines the per-account reconciliation report.
type ReconciliationService interface {
	GenerateReconciliationReport(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// LedgerHandler handles ledger-wide operations.
type LedgerHandler struct {
	ledgerUC         LedgerService
	reconciliationUC ReconciliationService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerUC LedgerService, reconciliationUC ReconciliationService) *LedgerHandler {
	return &LedgerHandler{ledgerUC: ledgerUC, reconciliationUC: reconciliationUC}
}

// CheckConsistency checks if the ledger is consistent.
func (h *LedgerHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledgerUC.CheckConsistency(r.Context())
	if err != nil {
		if errors.Is(err, usecase.ErrInconsistentLedger) && result != nil {
			writeJSON(w, http.StatusConflict, dto.ConsistencyFromResult(result))
			return
		}
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ConsistencyFromResult(result))
}

// Reconciliation reconciles every account against its latest entry.
func (h *LedgerHandler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciliationUC.GenerateReconciliationReport(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if len(report.Discrepancies) > 0 || !report.LedgerConsistent {
		status = http.StatusConflict
	}

	writeJSON(w, status, dto.ReconciliationReportFromUseCase(report))
}
