package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/iho/walletledger/internal/adapter/http/dto"
	"github.com/iho/walletledger/internal/adapter/http/middleware"
	"github.com/iho/walletledger/internal/domain"
)

// retryAfterSeconds is advertised on Contention responses.
const retryAfterSeconds = "1"

var errMissingOwner = fmt.Errorf("%w: no owner on request", domain.ErrUnauthenticated)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, kind domain.ErrorKind, message, details string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Code:    kind.String(),
		Message: details,
	})
}

// writeDomainError classifies err and writes the matching response. Internal
// errors are logged and never leak their text.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)

	switch kind {
	case domain.KindInternal, domain.KindAllocationExhausted:
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, status, kind, "internal server error", "")
		return
	case domain.KindContention:
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, status, kind, domain.ErrContention.Error(), "")
		return
	}

	message, linear := rootMessage(err)
	details := err.Error()
	if !linear || details == message {
		details = ""
	}
	writeError(w, status, kind, message, details)
}

// statusForKind maps an error kind to its HTTP status.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindContention:
		return http.StatusServiceUnavailable
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// rootMessage returns the innermost error text, which is the sentinel's
// message for wrapped domain errors. For joined errors the first branch is
// followed and ok is false, since the rest is driver detail.
func rootMessage(err error) (message string, ok bool) {
	ok = true
	for {
		if joined, isJoin := err.(interface{ Unwrap() []error }); isJoin {
			errs := joined.Unwrap()
			if len(errs) == 0 {
				return err.Error(), ok
			}
			err, ok = errs[0], false
			continue
		}

		next := errors.Unwrap(err)
		if next == nil {
			return err.Error(), ok
		}
		err = next
	}
}

// decodeJSON decodes the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, domain.KindInvalidRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// requireOwner returns the owner resolved by the auth middleware.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		writeDomainError(w, r, errMissingOwner)
		return "", false
	}
	return owner, true
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// parsePagination reads limit and offset, clamped to the allowed range.
func parsePagination(r *http.Request) dto.PaginationRequest {
	limit, offset, _ := domain.ValidatePagination(parseIntQuery(r, "limit", 0), parseIntQuery(r, "offset", 0))
	return dto.PaginationRequest{Limit: limit, Offset: offset}
}
