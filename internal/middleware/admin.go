package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// AdminTokenHeader carries the operator token for /api/v1/admin routes.
const AdminTokenHeader = "X-Admin-Token"

// AdminToken gates operator endpoints behind a shared token. With no token
// configured the routes answer 404 as if they were not mounted.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, `{"error":"Not found"}`, http.StatusNotFound)
				return
			}

			presented := r.Header.Get(AdminTokenHeader)
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				slog.Warn("admin token rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr))
				http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
