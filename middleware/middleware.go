// Package middleware implements the HTTP stages of the gateway. Each stage
// is a func(http.Handler) http.Handler; the gateway composes them in a
// fixed order.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/contextx"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies m to h so that m[0] is the outermost handler.
func Chain(h http.Handler, m ...Middleware) http.Handler {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// Error codes returned in JSON error bodies.
const (
	CodeRateLimited            = "RATE_LIMITED"
	CodeAuthRequired           = "AUTH_REQUIRED"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeInsufficientPrivileges = "INSUFFICIENT_PRIVILEGES"
	CodeIPBlocked              = "IP_BLOCKED"
	CodeInternal               = "INTERNAL_ERROR"
)

// ErrorBody is the JSON body of every rejection.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: msg, Code: code})
}

// clientIP returns the resolved client address of r, or "unknown".
func clientIP(r *http.Request) string {
	if addr, ok := contextx.ClientIPFromContext(r.Context()); ok {
		return addr.String()
	}
	return "unknown"
}

// details builds the audit context of an HTTP request.
func details(r *http.Request) audit.Details {
	d := audit.Details{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
		RequestID: contextx.RequestIDFromContext(r.Context()),
	}
	if a, ok := contextx.ActorFromContext(r.Context()); ok {
		d.User = a.Username
		d.Roles = a.Roles
	}
	return d
}

func record(r *http.Request, events *audit.Log, t audit.EventType, d audit.Details) {
	if events != nil {
		events.Record(r.Context(), t, d)
	}
}
