package handler

import (
	"crypto/subtle"
	"net/http"
)

// apiKeyMiddleware rejects requests whose x-api-key header does not match
// the configured key. A service deployed without a key refuses everything
// rather than running open.
func apiKeyMiddleware(apiKey string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("x-api-key")
			if apiKey == "" || provided == "" ||
				subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				respondError(w, r, http.StatusUnauthorized, errUnauthorized, "")
				return
			}
			next(w, r)
		}
	}
}
