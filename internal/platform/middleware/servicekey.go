package middleware

import (
	"log/slog"
	"net/http"

	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
	"attest/pkg/requestcontext"
	"attest/pkg/secrets"
)

const serviceKeyHeader = "X-Service-Key"

// RequireServiceKey guards service-to-service endpoints, such as the renderer
// fetching authoritative snapshots. The caller presents its plaintext key and
// we verify it against the bcrypt hash from configuration. An empty hash
// disables the endpoints rather than leaving them open.
func RequireServiceKey(keyHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			if keyHash == "" {
				logger.WarnContext(ctx, "service endpoint called but no service key configured",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "service access is not configured"))
				return
			}

			key := r.Header.Get(serviceKeyHeader)
			if key == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing service key"))
				return
			}

			if err := secrets.Verify(key, keyHash); err != nil {
				logger.WarnContext(ctx, "service key rejected",
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
