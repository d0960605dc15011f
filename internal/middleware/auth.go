package middleware

import (
	"net/http"
	"strings"

	"github.com/kohrachel/weshare-sub000/internal/auth"
)

// RequireUser validates the bearer token and populates AuthContext.
func RequireUser(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := bearerUser(r, secret)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{UserID: userID})))
		})
	}
}

// OptionalUser populates AuthContext when a valid bearer token is present and
// lets anonymous requests through otherwise.
func OptionalUser(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := bearerUser(r, secret); ok {
				r = r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{UserID: userID}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerUser(r *http.Request, secret string) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	userID, err := auth.ParseToken(secret, strings.TrimSpace(token))
	if err != nil {
		return "", false
	}
	return userID, true
}
