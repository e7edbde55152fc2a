package middleware

import (
	"net/http"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/auth"
	"github.com/Keksclan/goRawrGate/contextx"
)

// Authenticate verifies a bearer token when one is present and stores the
// resulting actor in the context. Requests without an Authorization header
// stay anonymous; a malformed or invalid token is rejected with 401 and
// recorded as INVALID_TOKEN.
func Authenticate(a auth.Authenticator, events *audit.Log) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := auth.BearerToken(header)
			if !ok {
				reject(w, r, events, "malformed authorization header")
				return
			}
			actor, err := a.Authenticate(r.Context(), token)
			if err != nil {
				reject(w, r, events, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(contextx.WithActor(r.Context(), actor)))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, events *audit.Log, msg string) {
	d := details(r)
	d.Reason = msg
	record(r, events, audit.InvalidToken, d)
	WriteError(w, http.StatusUnauthorized, CodeInvalidToken, msg)
}
