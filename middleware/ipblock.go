package middleware

import (
	"net/http"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/security"
)

// IPBlock rejects requests whose client address b does not allow with 403.
// It relies on Resolve having stored the client address; a request without
// one is rejected.
func IPBlock(b *security.IPBlocker, events *audit.Log) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, _ := contextx.ClientIPFromContext(r.Context())
			if !b.Allowed(addr) {
				record(r, events, audit.IPBlocked, details(r))
				WriteError(w, http.StatusForbidden, CodeIPBlocked, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
