package gorawrgate

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Keksclan/goRawrGate/api"
	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/auth"
	"github.com/Keksclan/goRawrGate/cache"
	"github.com/Keksclan/goRawrGate/catalog"
	"github.com/Keksclan/goRawrGate/middleware"
	"github.com/Keksclan/goRawrGate/security"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// fullGateway assembles the reference deployment over in-memory
// repositories.
func fullGateway(t *testing.T) *Gateway {
	t.Helper()
	jwt, err := auth.NewJWT(testSecret, auth.WithIssuer("gate-test"))
	if err != nil {
		t.Fatalf("NewJWT: %v", err)
	}
	t.Cleanup(jwt.Close)
	iss, err := auth.NewIssuer(testSecret, "gate-test", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	users, err := auth.DemoUsers()
	if err != nil {
		t.Fatalf("DemoUsers: %v", err)
	}

	gw := New(append(DefaultOptions(), WithLogger(quiet), WithAuth(jwt))...)
	env := &api.Env{Cache: gw.Cache(), Events: gw.Audit(), Log: quiet, Metrics: gw.MetricsHandler()}
	admin := middleware.RequireRoles(gw.Audit(), security.RoleAdmin)

	mux := gw.Mux()
	mux.Handle("POST /auth/login", api.Login(env, auth.NewDirectory(users...), iss))
	mux.Handle("GET /protected/profile", middleware.RequireRoles(gw.Audit())(http.HandlerFunc(api.Profile)))
	api.MountAdmin(mux, env, admin)
	api.Mount(mux, env, api.Resource[catalog.Product, *catalog.Product]{
		Kind:   catalog.Products,
		Repo:   catalog.NewMemory[catalog.Product](catalog.Products).Seed(catalog.SeedProducts()...),
		Create: admin,
		Write:  admin,
	})
	return gw
}

func do(t *testing.T, gw *Gateway, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("User-Agent", "gate-test")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, gw *Gateway, user, pw string) string {
	t.Helper()
	rec := do(t, gw, http.MethodPost, "/auth/login", "", map[string]string{"username": user, "password": pw})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status = %d, body = %s", user, rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body.Code
}

func TestPipeline_HeadersAndValidation(t *testing.T) {
	gw := fullGateway(t)

	rec := do(t, gw, http.MethodGet, "/products", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("hardening headers missing")
	}
	if rec.Header().Get("RateLimit-Limit") != "100" {
		t.Errorf("RateLimit-Limit = %q", rec.Header().Get("RateLimit-Limit"))
	}

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Del("User-Agent")
	rec = httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing User-Agent: status = %d", rec.Code)
	}
	if got := errorCode(t, rec); got != security.CodeMissingHeader {
		t.Fatalf("code = %q", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("rejections must carry hardening headers too")
	}

	rec = do(t, gw, http.MethodGet, "/products?q="+strings.Repeat("a", 1001), "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("long query: status = %d", rec.Code)
	}
}

func TestPipeline_LoginRateLimit(t *testing.T) {
	gw := fullGateway(t)

	for i := range 5 {
		rec := do(t, gw, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
	}
	rec := do(t, gw, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "alicepass"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th attempt: status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	if got := errorCode(t, rec); got != middleware.CodeRateLimited {
		t.Fatalf("code = %q", got)
	}

	// The auth group counts separately from general traffic.
	if rec := do(t, gw, http.MethodGet, "/products", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("/products after auth limit: status = %d", rec.Code)
	}

	st := gw.Audit().Stats()
	if st.EventTypes[audit.UnauthorizedAccess] != 5 || st.EventTypes[audit.RateLimitExceeded] != 1 {
		t.Fatalf("events = %v", st.EventTypes)
	}
}

func TestPipeline_AdminRequiresRole(t *testing.T) {
	gw := fullGateway(t)
	alice := login(t, gw, "alice", "alicepass")
	bob := login(t, gw, "bob", "bobpass")

	rec := do(t, gw, http.MethodGet, "/admin/cache/stats", "", nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != middleware.CodeAuthRequired {
		t.Fatalf("anonymous: status = %d", rec.Code)
	}
	rec = do(t, gw, http.MethodGet, "/admin/cache/stats", alice, nil)
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != middleware.CodeInsufficientPrivileges {
		t.Fatalf("alice: status = %d", rec.Code)
	}
	rec = do(t, gw, http.MethodGet, "/admin/cache/stats", bob, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("bob: status = %d", rec.Code)
	}

	if rec = do(t, gw, http.MethodGet, "/admin/metrics", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous metrics: status = %d", rec.Code)
	}
	if rec = do(t, gw, http.MethodGet, "/admin/metrics", alice, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("alice metrics: status = %d", rec.Code)
	}
	rec = do(t, gw, http.MethodGet, "/admin/metrics", bob, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "gate_security_events_total") {
		t.Fatalf("bob metrics: status = %d", rec.Code)
	}

	rec = do(t, gw, http.MethodGet, "/admin/cache/stats", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != middleware.CodeInvalidToken {
		t.Fatalf("garbage token: status = %d", rec.Code)
	}
}

func TestPipeline_ProtectedProfile(t *testing.T) {
	gw := fullGateway(t)

	rec := do(t, gw, http.MethodGet, "/protected/profile", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d", rec.Code)
	}
	if got := gw.Audit().Stats().EventTypes[audit.UnauthorizedAccessAttempt]; got != 1 {
		t.Fatalf("UNAUTHORIZED_ACCESS_ATTEMPT events = %d, want 1", got)
	}

	alice := login(t, gw, "alice", "alicepass")
	rec = do(t, gw, http.MethodGet, "/protected/profile", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("alice: status = %d", rec.Code)
	}
	var profile struct {
		Username string   `json:"username"`
		Roles    []string `json:"roles"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
		t.Fatal(err)
	}
	if profile.Username != "alice" || len(profile.Roles) != 1 || profile.Roles[0] != "user" {
		t.Fatalf("profile = %+v", profile)
	}
	if got := gw.Audit().Stats().EventTypes[audit.AuthenticatedRequest]; got == 0 {
		t.Fatal("authenticated request not recorded")
	}
}

func TestPipeline_CacheAsideWithInvalidation(t *testing.T) {
	gw := fullGateway(t)
	bob := login(t, gw, "bob", "bobpass")

	for range 2 {
		if rec := do(t, gw, http.MethodGet, "/products", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("list: status = %d", rec.Code)
		}
	}
	st := gw.Cache().Stats()
	if st.HitCount != 1 || st.MissCount != 1 {
		t.Fatalf("after two reads: %+v", st)
	}
	if _, ok := gw.Cache().Get(cache.KeyAll("products")); !ok {
		t.Fatal("listing not cached")
	}

	rec := do(t, gw, http.MethodPost, "/products", "", map[string]any{"name": "Monitor", "price": 300})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: status = %d", rec.Code)
	}
	rec = do(t, gw, http.MethodPost, "/products", bob, map[string]any{"name": "Monitor", "price": 300})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if _, ok := gw.Cache().Get(cache.KeyAll("products")); ok {
		t.Fatal("listing survived a write")
	}

	rec = do(t, gw, http.MethodGet, "/products", "", nil)
	var items []catalog.Product
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 4 || items[3].Name != "Monitor" {
		t.Fatalf("items after create = %+v", items)
	}
}
