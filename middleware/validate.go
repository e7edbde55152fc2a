package middleware

import (
	"net/http"

	"github.com/Keksclan/goRawrGate/security"
)

// ValidateInput rejects requests that fail v with 400 or 413. Accepted
// request bodies are capped at the configured maximum, so a body that lied
// about its length fails when read.
func ValidateInput(v *security.Validator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if viol := v.Check(r); viol != nil {
				WriteError(w, viol.Status, viol.Code, viol.Message)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, v.MaxBodyBytes())
			}
			next.ServeHTTP(w, r)
		})
	}
}
