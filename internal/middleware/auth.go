package middleware

import (
	"context"
	"net/http"
	"strings"

	"campus-market/internal/observability"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"

	// AccessTokenCookie carries the signed access token for browser clients.
	AccessTokenCookie = "access_token"
)

// TokenParser validates an access token and returns the user it was issued to.
type TokenParser interface {
	Parse(token string) (int64, error)
}

// Auth rejects requests without a valid access token and stores the
// authenticated user id in the request context.
func Auth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, false)
			if token == "" {
				http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}

			userID, err := tokens.Parse(token)
			if err != nil {
				http.Error(w, `{"error":"Invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			ctx := WithUserID(r.Context(), userID)
			ctx = observability.WithUserID(ctx, userID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest looks for an access token in the cookie, then the
// Authorization header. Browsers cannot set headers on a WebSocket
// handshake, so allowQuery also accepts ?token=.
func TokenFromRequest(r *http.Request, allowQuery bool) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}

	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}

func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
