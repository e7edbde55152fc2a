// Package gorawrgate is a security offloading gateway: one component that
// applies panic recovery, request ids, tracing, metrics, hardening
// headers, input validation, per-group rate limiting, authentication,
// role-based authorization and security-event logging in front of HTTP
// routes and gRPC services, plus the cache-aside store route handlers read
// through.
//
// Stages are enabled with functional [Option] values. Their execution
// order is fixed by priority (see the Order constants), not by the order
// the options are passed in:
//
//	gw := gorawrgate.New(append(gorawrgate.DefaultOptions(),
//		gorawrgate.WithAuth(jwt),
//	)...)
//	gw.Handle("GET /products", productsHandler)
//	http.ListenAndServe(":8080", gw.Handler())
package gorawrgate

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/cache"
	"github.com/Keksclan/goRawrGate/internal/core"
	"github.com/Keksclan/goRawrGate/middleware"
	"github.com/Keksclan/goRawrGate/ping"
	"github.com/Keksclan/goRawrGate/policy"
	"github.com/Keksclan/goRawrGate/ratelimit"
	"github.com/Keksclan/goRawrGate/security"
)

// Gateway owns the shared components and the assembled HTTP and gRPC
// pipelines. Register routes with Handle and services on GRPC, then serve
// Handler.
type Gateway struct {
	log      *slog.Logger
	registry *prometheus.Registry
	cache    *cache.Store
	audit    *audit.Log
	clients  *security.ClientResolver
	resolver *policy.Resolver
	limits   *ratelimit.Groups

	mux        *http.ServeMux
	handler    http.Handler
	grpcServer *grpc.Server
}

// New assembles a Gateway from opts. Components not supplied by an option
// are created with their defaults: a private Prometheus registry, a cache
// store and an audit log registered on it, a client resolver trusting no
// proxy and the policy.Defaults groups.
func New(opts ...Option) *Gateway {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	g := &Gateway{
		log:      cfg.log,
		registry: cfg.registry,
		cache:    cfg.cache,
		audit:    cfg.audit,
		clients:  cfg.clients,
		mux:      http.NewServeMux(),
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.registry == nil {
		g.registry = prometheus.NewRegistry()
		g.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if g.cache == nil {
		g.cache = cache.New(cache.WithLogger(g.log))
	}
	g.registry.MustRegister(cache.NewCollector(g.cache))
	if g.audit == nil {
		g.audit = audit.New(audit.WithLogger(g.log), audit.WithRegisterer(g.registry))
	}
	if g.clients == nil {
		g.clients, _ = security.NewClientResolver(nil, nil)
	}
	groups := cfg.groups
	if groups == nil {
		groups = policy.Defaults(policy.DefaultSensitivePrefixes)
	}
	g.resolver = policy.NewResolver(groups...)
	g.limits = ratelimit.NewGroups(g.resolver, cfg.global, cfg.factory)

	var mb core.MiddlewareBuilder
	mb.Add(OrderResolve, middleware.Resolve(g.clients, g.resolver), nil, nil)
	for _, s := range cfg.stages {
		h, p := s.build(g)
		mb.Add(s.order, h, p.unary, p.stream)
	}
	httpChain, unary, stream := mb.Build()

	g.handler = core.Wrap(g.mux, httpChain)
	g.grpcServer = grpc.NewServer(core.BuildServerOptions(unary, stream)...)
	return g
}

// Handle registers h for pattern (http.ServeMux syntax) behind the
// gateway stages.
func (g *Gateway) Handle(pattern string, h http.Handler) {
	g.mux.Handle(pattern, h)
}

// HandleFunc is Handle for a function.
func (g *Gateway) HandleFunc(pattern string, h func(http.ResponseWriter, *http.Request)) {
	g.mux.HandleFunc(pattern, h)
}

// Mux returns the route multiplexer behind the stages.
func (g *Gateway) Mux() *http.ServeMux { return g.mux }

// Handler returns the complete HTTP pipeline.
func (g *Gateway) Handler() http.Handler { return g.handler }

// GRPC returns the underlying *grpc.Server so callers can register services.
func (g *Gateway) GRPC() *grpc.Server { return g.grpcServer }

// RegisterPing registers the gate.Ping health service on the gRPC server.
func (g *Gateway) RegisterPing(h ping.Handler) {
	ping.Register(g.grpcServer, h)
}

// Cache returns the cache store.
func (g *Gateway) Cache() *cache.Store { return g.cache }

// Audit returns the security event log.
func (g *Gateway) Audit() *audit.Log { return g.audit }

// Policies returns the policy resolver.
func (g *Gateway) Policies() *policy.Resolver { return g.resolver }

// Registry returns the Prometheus registry holding the gateway's
// collectors.
func (g *Gateway) Registry() *prometheus.Registry { return g.registry }

// MetricsHandler serves the gateway registry in the Prometheus text format.
func (g *Gateway) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{Registry: g.registry})
}
