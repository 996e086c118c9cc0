package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/auth"
	"github.com/iho/walletledger/internal/infrastructure/metrics"
	"github.com/iho/walletledger/internal/usecase"
)

type contextKey int

const (
	ownerContextKey contextKey = iota
	requestMetaContextKey
	logFieldsContextKey
)

// OwnerHeader carries the owner id when bearer auth is disabled.
const OwnerHeader = "X-Owner-ID"

var (
	errMissingCredential = errors.New("missing credential")
	errMalformedHeader   = errors.New("invalid authorization header format")
)

// CredentialExtractor pulls the raw caller credential out of a request.
type CredentialExtractor func(r *http.Request) (string, error)

// BearerToken reads "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingCredential
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errMalformedHeader
	}

	return parts[1], nil
}

// OwnerIDHeader reads the owner id from OwnerHeader.
func OwnerIDHeader(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if owner == "" {
		return "", errMissingCredential
	}
	return owner, nil
}

// AuthMiddleware resolves the caller's owner id and stores it in the request
// context. Requests it cannot resolve never reach the handler.
type AuthMiddleware struct {
	resolver usecase.OwnerResolver
	extract  CredentialExtractor
	metrics  *metrics.Metrics
}

// NewAuthMiddleware creates an AuthMiddleware. m may be nil.
func NewAuthMiddleware(resolver usecase.OwnerResolver, extract CredentialExtractor, m *metrics.Metrics) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver, extract: extract, metrics: m}
}

// Wrap wraps an http.Handler with owner resolution.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential, err := m.extract(r)
		if err != nil {
			m.reject(w, failureReason(err), err.Error())
			return
		}

		owner, err := m.resolver.ResolveOwner(r.Context(), credential)
		if err != nil {
			m.reject(w, failureReason(err), "invalid or expired credential")
			return
		}

		recordOwner(r.Context(), owner)
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, reason, message string) {
	if m.metrics != nil {
		m.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `","code":"` + domain.KindUnauthenticated.String() + `"}`))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, errMissingCredential):
		return "missing"
	case errors.Is(err, errMalformedHeader):
		return "malformed"
	case errors.Is(err, auth.ErrExpiredToken):
		return "expired"
	default:
		return "invalid"
	}
}

// WithOwner returns a copy of ctx carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerContextKey, owner)
}

// OwnerFromContext returns the owner id resolved for the request.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerContextKey).(string)
	return owner, ok && owner != ""
}
