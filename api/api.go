// Package api holds the gateway's route handlers: the catalog resources
// served cache-aside, login, the administrative introspection endpoints
// and health.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/cache"
	"github.com/Keksclan/goRawrGate/middleware"
)

// Error codes specific to route handlers.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_FAILED"
	CodeBadRequest          = "BAD_REQUEST"
	CodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
)

// FallbackHeader is set on responses served from a fallback repository.
const FallbackHeader = "X-Gate-Fallback"

// Env carries the shared state handlers need.
type Env struct {
	Cache *cache.Store
	// Invalidator receives the keys dropped after writes. Defaults to Cache;
	// a cache.Bus also tells the other gateway instances.
	Invalidator cache.Invalidator
	Events      *audit.Log
	Log         *slog.Logger
	// TTL of cached reads; zero uses the store default.
	TTL time.Duration
	// Metrics, when set, is served admin-only at /admin/metrics.
	Metrics http.Handler
}

func (e *Env) invalidator() cache.Invalidator {
	if e.Invalidator != nil {
		return e.Invalidator
	}
	return e.Cache
}

func (e *Env) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into v and writes a rejection on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large")
		return false
	}
	middleware.WriteError(w, http.StatusBadRequest, CodeBadRequest, "request body must be valid JSON")
	return false
}

// guard applies m to h when m is set.
func guard(h http.HandlerFunc, m middleware.Middleware) http.Handler {
	if m == nil {
		return h
	}
	return m(h)
}
