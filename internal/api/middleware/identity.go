package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// UserIDKey is the context key for the authenticated user id.
const UserIDKey contextKey = "user_id"

// AnonymousUser is the fallback identity when no user id is supplied.
const AnonymousUser = "anonymous"

// Identity extracts the calling user from the request. It checks the
// X-User-Id header, then the user_id query parameter, and falls back to
// the anonymous identity. Verification of the id is owned by the gateway
// in front of this service.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := ""

		if h := r.Header.Get("X-User-Id"); h != "" {
			userID = strings.TrimSpace(h)
		}

		if userID == "" {
			if q := r.URL.Query().Get("user_id"); q != "" {
				userID = strings.TrimSpace(q)
			}
		}

		if userID == "" {
			userID = AnonymousUser
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID retrieves the user id from the request context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return AnonymousUser
}
