package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/timenest/internal/auth"
	"github.com/dukerupert/timenest/internal/store"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "timenest_session"

// RequireAuth validates the session cookie, loads the session's user and
// populates AuthContext. Requests without a live session get a 401.
func RequireAuth(sessionStore *store.SessionStore, userStore *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				jsonError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			sess, err := sessionStore.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				jsonError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			user, err := userStore.GetByID(sess.UserID)
			if err != nil || user == nil {
				jsonError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			ac := auth.AuthContext{
				UserID:    user.ID,
				Username:  user.Username,
				Role:      user.Role,
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			jsonError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
