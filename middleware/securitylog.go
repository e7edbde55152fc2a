package middleware

import (
	"net/http"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/contextx"
)

// SecurityLogger records AUTHENTICATED_REQUEST for every request carrying
// an actor, and UNAUTHORIZED_ACCESS_ATTEMPT for requests to a sensitive
// policy group that carry no Authorization header. It never rejects.
func SecurityLogger(events *audit.Log) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := contextx.ActorFromContext(r.Context()); ok {
				record(r, events, audit.AuthenticatedRequest, details(r))
			} else if pol := PolicyFromContext(r.Context()); pol != nil && pol.Sensitive && r.Header.Get("Authorization") == "" {
				record(r, events, audit.UnauthorizedAccessAttempt, details(r))
			}
			next.ServeHTTP(w, r)
		})
	}
}
