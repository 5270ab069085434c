package middleware

import (
	"context"
	"net/http"
	"strconv"
)

type ContextKey string

const UserIDKey ContextKey = "user_id"

// UserIDHeader carries the caller's user id, set by the gateway in front of
// the API after it authenticates the request.
const UserIDHeader = "X-User-ID"

// UserID rejects requests without a positive numeric X-User-ID and stores the
// id in the request context.
func UserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if raw == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid user id", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}

// WithUserID returns a context carrying the user id.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// UserIDFromContext returns the id stored by UserID.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}
