package middleware

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"factory-digital-twin/shared/httpx"
)

// DBRequiredMiddleware rejects data requests with 503 when the service came
// up without a database pool, instead of letting the repos panic on a nil
// pool deeper in the stack.
type DBRequiredMiddleware struct {
	Pool *pgxpool.Pool
	Skip func(*http.Request) bool
}

func (m DBRequiredMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		if m.Pool == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "database not configured", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
