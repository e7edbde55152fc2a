package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/cache"
	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/middleware"
	"github.com/Keksclan/goRawrGate/security"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEnv() *Env {
	return &Env{
		Cache:  cache.New(cache.WithLogger(discard)),
		Events: audit.New(audit.WithLogger(discard)),
		Log:    discard,
	}
}

func request(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func as(r *http.Request, roles ...security.Role) *http.Request {
	a := contextx.Actor{Subject: "7", Username: "carol", Roles: security.Roles(roles...)}
	return r.WithContext(contextx.WithActor(r.Context(), a))
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[middleware.ErrorBody](t, rec).Code
}
