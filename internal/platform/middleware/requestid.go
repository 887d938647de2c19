// Package middleware holds the HTTP middleware chain: request identity,
// request-scoped time, client metadata, panic recovery, and authentication.
// Values flow to services through pkg/requestcontext so nothing below the
// handler layer imports net/http.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"attest/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request an ID, honoring one supplied by an upstream
// proxy, and echoes it back in the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
