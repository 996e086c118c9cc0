package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/iho/walletledger/internal/adapter/http/dto"
	"github.com/iho/walletledger/internal/adapter/http/middleware"
	"github.com/iho/walletledger/internal/domain"
)

const testOwner = "owner-1"

func withOwner(r *http.Request) *http.Request {
	return r.WithContext(middleware.WithOwner(r.Context(), testOwner))
}

func setChiURLParam(r *http.Request, key, value string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, &chi.Context{
		URLParams: chi.RouteParams{
			Keys:   []string{key},
			Values: []string{value},
		},
	}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/accounts?limit=50", nil)
	if got := parseIntQuery(req, "limit", 10); got != 50 {
		t.Fatalf("expected limit=50, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/accounts?limit=invalid", nil)
	if got := parseIntQuery(req, "limit", 10); got != 10 {
		t.Fatalf("expected fallback to default, got %d", got)
	}

	req.URL = &url.URL{RawQuery: ""}
	if got := parseIntQuery(req, "limit", 25); got != 25 {
		t.Fatalf("expected default when missing, got %d", got)
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"limit=5&offset=2", 5, 2},
		{"limit=5000", 1000, 0},
		{"limit=-1&offset=-3", 50, 0},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/accounts?"+tt.query, nil)
		got := parsePagination(req)
		if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
			t.Fatalf("query %q: expected %d/%d, got %+v", tt.query, tt.wantLimit, tt.wantOffset, got)
		}
	}
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{"account not found", domain.ErrAccountNotFound, http.StatusNotFound, "NOT_FOUND", domain.ErrAccountNotFound.Error()},
		{"wrapped transfer not found", fmt.Errorf("reverse: %w", domain.ErrTransferNotFound), http.StatusNotFound, "NOT_FOUND", domain.ErrTransferNotFound.Error()},
		{"invalid amount", domain.ErrInvalidAmount, http.StatusBadRequest, "INVALID_REQUEST", domain.ErrInvalidAmount.Error()},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", domain.ErrInsufficientFunds.Error()},
		{"duplicate reference", errors.Join(domain.ErrDuplicateReference, errors.New("pg detail")), http.StatusConflict, "CONFLICT", domain.ErrDuplicateReference.Error()},
		{"unauthenticated", domain.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED", domain.ErrUnauthenticated.Error()},
		{"allocation exhausted", domain.ErrAllocationExhausted, http.StatusInternalServerError, "ALLOCATION_EXHAUSTED", "internal server error"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			writeDomainError(rec, req, tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}

			resp := decodeError(t, rec)
			if resp.Code != tt.wantCode || resp.Error != tt.wantError {
				t.Fatalf("unexpected body: %+v", resp)
			}
		})
	}
}

func TestWriteDomainError_ContentionSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	writeDomainError(rec, req, errors.Join(domain.ErrContention, errors.New("lock timeout")))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	resp := decodeError(t, rec)
	if resp.Code != "CONTENTION" || resp.Message != "" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestWriteDomainError_KeepsContextInDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	err := fmt.Errorf("%w: XYZ", domain.ErrInvalidCurrency)

	writeDomainError(rec, req, err)

	resp := decodeError(t, rec)
	if resp.Error != domain.ErrInvalidCurrency.Error() || resp.Message != err.Error() {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestRequireOwner_Missing(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, ok := requireOwner(rec, req); ok {
		t.Fatalf("expected no owner")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	payload := map[string]string{"status": "ok"}

	writeJSON(rr, http.StatusCreated, payload)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	var decoded map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if decoded["status"] != "ok" {
		t.Fatalf("expected payload to round-trip, got %+v", decoded)
	}
}
