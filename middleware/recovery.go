package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/Keksclan/goRawrGate/contextx"
)

// Recovery turns a panic in a later stage or handler into a 500 response.
// The panic and stack go to log; the client only sees a generic message.
func Recovery(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.ErrorContext(r.Context(), "panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"request_id", contextx.RequestIDFromContext(r.Context()),
					"stack", string(debug.Stack()),
				)
				WriteError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
