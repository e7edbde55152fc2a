package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Keksclan/goRawrGate/contextx"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds caller supplied ids.
const maxRequestIDLen = 128

// RequestID keeps a caller supplied X-Request-ID (when short enough) or
// generates one, stores it in the context and echoes it on the response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(contextx.WithRequestID(r.Context(), id)))
		})
	}
}
