package middleware

import (
	"context"
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/iho/walletledger/internal/domain"
)

// TraceIDHeader lets callers supply the trace id recorded on ledger entries.
const TraceIDHeader = "X-Trace-ID"

// RequestMeta captures trace id, client address and user agent for the ledger.
// It must run after chi's RequestID and RealIP middlewares.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceIDHeader)
		if traceID == "" {
			traceID = chimw.GetReqID(r.Context())
		}

		meta := domain.RequestMeta{
			TraceID:   traceID,
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		}

		next.ServeHTTP(w, r.WithContext(WithRequestMeta(r.Context(), meta)))
	})
}

// WithRequestMeta returns a copy of ctx carrying meta.
func WithRequestMeta(ctx context.Context, meta domain.RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey, meta)
}

// RequestMetaFromContext returns the meta captured for the request, or the
// zero value.
func RequestMetaFromContext(ctx context.Context) domain.RequestMeta {
	meta, _ := ctx.Value(requestMetaContextKey).(domain.RequestMeta)
	return meta
}

// clientIP strips the port RemoteAddr carries when RealIP did not rewrite it.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
