package middleware

import (
	"bytes"
	"context"
	"net/http"

	"github.com/veyra/authcore"
	"github.com/veyra/authcore/idempotency"
)

// IdempotencyKeyHeader is the client-supplied deduplication key header.
const IdempotencyKeyHeader = "Idempotency-Key"

// recorder buffers the handler's response so a 2xx outcome can be stored
// and replayed verbatim.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (r *recorder) Header() http.Header         { return r.header }
func (r *recorder) WriteHeader(status int)      { r.status = status }
func (r *recorder) Write(b []byte) (int, error) { return r.body.Write(b) }

// Idempotent deduplicates a mutating route per (operation, account,
// Idempotency-Key). Requests without the header pass straight through;
// clients opt in by sending one. The account scope comes from Guard claims
// when present, so unauthenticated routes share the anonymous scope.
func Idempotent(engine *authcore.Engine, operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			scope := "anonymous"
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				scope = claims.AccountID
			}

			var rec *recorder
			result, err := engine.Idempotent(r.Context(), operation, scope, clientKey,
				func(ctx context.Context) (idempotency.Result, error) {
					rec = newRecorder()
					next.ServeHTTP(rec, r.WithContext(ctx))
					return idempotency.Result{Status: rec.status, Body: rec.body.Bytes()}, nil
				})
			if err != nil {
				WriteError(w, err)
				return
			}

			// First execution carries the handler's headers through; a
			// replay has only the stored status and body.
			if rec != nil {
				for key, values := range rec.header {
					w.Header()[key] = values
				}
			}
			if w.Header().Get("Content-Type") == "" {
				w.Header().Set("Content-Type", "application/json")
			}
			w.WriteHeader(result.Status)
			_, _ = w.Write(result.Body)
		})
	}
}
