package middleware

import (
	"net/http"

	"github.com/Keksclan/goRawrGate/security"
)

// SecurityHeaders attaches the hardening headers to every response. It
// never rejects a request.
func SecurityHeaders(h *security.Headers) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.Apply(w.Header())
			next.ServeHTTP(w, r)
		})
	}
}
