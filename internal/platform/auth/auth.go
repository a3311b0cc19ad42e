package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireToken returns chi-compatible middleware that rejects requests whose
// Authorization header does not carry the configured bearer token. An empty
// token disables the check entirely, which is the default for single-user
// deployments on a trusted network.
func RequireToken(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
