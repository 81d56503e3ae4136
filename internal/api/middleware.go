// Package api implements the Agora REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requestToken extracts the bearer token. EventSource cannot set headers,
// so an access_token query parameter is accepted as well.
func requestToken(r *http.Request) string {
	if given, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return given
	}
	return r.URL.Query().Get("access_token")
}

// AuthMiddleware rejects requests without the configured bearer token.
// When enabled is false it is a pass-through.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := requestToken(r)
			if given == "" || subtle.ConstantTimeCompare([]byte(given), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="agora"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
