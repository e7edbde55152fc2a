// Command gateway runs the security offloading gateway in front of the
// catalog services: products, clients and orders.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gate "github.com/Keksclan/goRawrGate"
	"github.com/Keksclan/goRawrGate/api"
	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/auth"
	"github.com/Keksclan/goRawrGate/cache"
	"github.com/Keksclan/goRawrGate/catalog"
	"github.com/Keksclan/goRawrGate/config"
	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/middleware"
	"github.com/Keksclan/goRawrGate/ping"
	"github.com/Keksclan/goRawrGate/ratelimit"
	"github.com/Keksclan/goRawrGate/security"
	"github.com/Keksclan/goRawrGate/tracing"
)

func main() {
	configPath := flag.String("config", os.Getenv("GATE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// deps holds the optional backing services. Nil fields are disabled.
type deps struct {
	redis *redis.Client
	nats  *nats.Conn
	pg    *pgxpool.Pool
}

func (d *deps) close() {
	if d.pg != nil {
		d.pg.Close()
	}
	if d.nats != nil {
		_ = d.nats.Drain()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*deps, error) {
	d := &deps{}
	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Info("redis configured", "addr", cfg.Redis.Addr)
	}
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("gorawrgate"), nats.MaxReconnects(-1))
		if err != nil {
			d.close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		d.nats = nc
		log.Info("nats connected", "url", nc.ConnectedUrl())
	}
	if cfg.Postgres.URL != "" {
		if cfg.Postgres.Migrate {
			if err := catalog.Migrate(cfg.Postgres.URL, log); err != nil {
				d.close()
				return nil, err
			}
		}
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.pg = pool
	}
	return d, nil
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	d, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := cache.New(
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithMaxSize(cfg.Cache.MaxSize),
		cache.WithFetchTimeout(cfg.Cache.FetchTimeout),
		cache.WithLogger(log),
	)
	auditOpts := []audit.Option{
		audit.WithCapacity(cfg.Audit.Capacity),
		audit.WithLogger(log),
		audit.WithRegisterer(reg),
	}
	var invalidator cache.Invalidator = store
	if d.nats != nil {
		bus, err := cache.NewBus(store, d.nats, cfg.NATS.InvalidationSubject)
		if err != nil {
			return err
		}
		defer bus.Close()
		invalidator = bus
		auditOpts = append(auditOpts, audit.WithSink(audit.NewNATSSink(d.nats, cfg.NATS.AuditSubjectPrefix)))
	}
	events := audit.New(auditOpts...)

	clients, err := security.NewClientResolver(cfg.Security.TrustedProxies, cfg.Security.ClientIPHeaders)
	if err != nil {
		return err
	}

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		log.Warn("no JWT secret configured, using an ephemeral one; tokens will not survive a restart")
	}
	jwt, err := auth.NewJWT(secret, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}
	defer jwt.Close()
	issuer, err := auth.NewIssuer(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	var users []auth.User
	if cfg.Auth.DemoUsers {
		if users, err = auth.DemoUsers(); err != nil {
			return err
		}
	}

	opts, shutdownTracing, err := gatewayOptions(cfg, d, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()
	gw := gate.New(append(opts,
		gate.WithLogger(log),
		gate.WithRegistry(reg),
		gate.WithCache(store),
		gate.WithAudit(events),
		gate.WithClientResolver(clients),
		gate.WithPolicies(cfg.Policies()...),
		gate.WithAuth(jwt),
	)...)

	health := ping.NewService(checks(d)...)
	if err := mountRoutes(gw, cfg, d, &api.Env{
		Cache:       store,
		Invalidator: invalidator,
		Events:      events,
		Log:         log,
		TTL:         cfg.Cache.TTL,
	}, auth.NewDirectory(users...), issuer, health, log); err != nil {
		return err
	}
	gw.RegisterPing(health)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Cache.JanitorInterval > 0 {
		g.Go(func() error {
			store.RunJanitor(ctx, cfg.Cache.JanitorInterval)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		g.Go(func() error {
			log.Info("grpc listening", "addr", cfg.GRPC.Addr)
			return gw.GRPC().Serve(lis)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		gw.GRPC().GracefulStop()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// gatewayOptions selects the stages from cfg. The returned function flushes
// the tracer and is never nil.
func gatewayOptions(cfg config.Config, d *deps, log *slog.Logger) ([]gate.Option, func(context.Context) error, error) {
	headers := security.DefaultHeadersConfig()
	if !cfg.Security.HSTS {
		headers.HSTSMaxAge = 0
	}
	opts := []gate.Option{
		gate.WithRecovery(),
		gate.WithRequestID(),
		gate.WithMetrics(),
		gate.WithSecurityHeaders(&headers),
		gate.WithValidation(&security.ValidationConfig{
			RequiredHeaders:     cfg.Security.RequiredHeaders,
			MaxBodyBytes:        cfg.Security.MaxBodyBytes,
			MaxQueryParamLength: cfg.Security.MaxQueryParamLength,
		}),
		gate.WithRateLimit(),
		gate.WithAuthorization(),
		gate.WithSecurityLogging(),
	}

	if len(cfg.Security.IPBlock.CIDRs) > 0 {
		mode, err := security.ParseMode(cfg.Security.IPBlock.Mode)
		if err != nil {
			return nil, nil, err
		}
		b, err := security.NewIPBlocker(mode, cfg.Security.IPBlock.CIDRs)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, gate.WithIPBlock(b))
	}

	switch cfg.RateLimit.Backend {
	case "redis":
		rdb := d.redis
		opts = append(opts, gate.WithRateLimitFactory(func(limit int, w time.Duration) ratelimit.Limiter {
			return ratelimit.NewRedisWindow(rdb, limit, w)
		}))
	case "tokenbucket":
		opts = append(opts, gate.WithRateLimitFactory(func(limit int, w time.Duration) ratelimit.Limiter {
			return ratelimit.PerWindow(limit, w)
		}))
	}

	shutdown := func(context.Context) error { return nil }
	if cfg.Tracing.Stdout {
		tc, flush, err := tracing.Stdout(os.Stdout)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, gate.WithOpenTelemetry(tc))
		shutdown = flush
		log.Info("tracing to stdout")
	}
	return opts, shutdown, nil
}

func checks(d *deps) []ping.Option {
	var opts []ping.Option
	if d.redis != nil {
		opts = append(opts, ping.WithCheck("redis", func(ctx context.Context) error {
			return d.redis.Ping(ctx).Err()
		}))
	}
	if d.nats != nil {
		opts = append(opts, ping.WithCheck("nats", func(context.Context) error {
			if !d.nats.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}))
	}
	if d.pg != nil {
		opts = append(opts, ping.WithCheck("postgres", d.pg.Ping))
	}
	return opts
}

func mountRoutes(gw *gate.Gateway, cfg config.Config, d *deps, env *api.Env, dir *auth.Directory, iss *auth.Issuer, health *ping.Service, log *slog.Logger) error {
	events := env.Events
	admin := middleware.RequireRoles(events, security.RoleAdmin)
	authenticated := middleware.RequireRoles(events)

	mux := gw.Mux()
	mux.Handle("POST /auth/login", api.Login(env, dir, iss))
	mux.Handle("GET /protected/profile", authenticated(http.HandlerFunc(api.Profile)))
	mux.Handle("GET /health", api.Health(health))
	env.Metrics = gw.MetricsHandler()
	api.MountAdmin(mux, env, admin)

	products, err := repository[catalog.Product](catalog.Products, cfg.Upstreams.Products, d, log)
	if err != nil {
		return err
	}
	api.Mount(mux, env, seeded(api.Resource[catalog.Product, *catalog.Product]{
		Kind:   catalog.Products,
		Repo:   products,
		Create: admin,
		Write:  admin,
	}, catalog.SeedProducts))

	clients, err := repository[catalog.Client](catalog.Clients, cfg.Upstreams.Clients, d, log)
	if err != nil {
		return err
	}
	api.Mount(mux, env, seeded(api.Resource[catalog.Client, *catalog.Client]{
		Kind:   catalog.Clients,
		Repo:   clients,
		Create: admin,
		Write:  admin,
	}, catalog.SeedClients))

	orders, err := repository[catalog.Order](catalog.Orders, cfg.Upstreams.Orders, d, log)
	if err != nil {
		return err
	}
	api.Mount(mux, env, api.Resource[catalog.Order, *catalog.Order]{
		Kind:   catalog.Orders,
		Repo:   orders,
		Read:   authenticated,
		Create: middleware.RequireCustomer(events),
		Write:  admin,
		BeforeCreate: func(r *http.Request, o *catalog.Order) {
			if a, ok := contextx.ActorFromContext(r.Context()); ok {
				o.ClientID = a.Subject
			}
		},
	})
	return nil
}

type record[E any] interface {
	*E
	catalog.Entity
}

// seeded fills an in-memory repository with the seed records, or serves
// them as the fallback of a relayed one.
func seeded[E any, PT record[E]](res api.Resource[E, PT], seed func() []PT) api.Resource[E, PT] {
	switch repo := res.Repo.(type) {
	case *catalog.Memory[E, PT]:
		repo.Seed(seed()...)
	case *catalog.Upstream[E, PT]:
		res.Fallback = catalog.NewMemory[E, PT](res.Kind).Seed(seed()...)
	}
	return res
}

// repository picks the backing store of a resource: the upstream service
// when a URL is configured, else Postgres when connected, else memory.
func repository[E any, PT record[E]](k catalog.Kind, upstream string, d *deps, log *slog.Logger) (catalog.Repository[PT], error) {
	switch {
	case upstream != "":
		log.Info("catalog resource relayed", "resource", k.Plural, "upstream", upstream)
		u, err := catalog.NewUpstream[E, PT](k, upstream, catalog.WithUpstreamLogger(log))
		if err != nil {
			return nil, err
		}
		return u, nil
	case d.pg != nil:
		log.Info("catalog resource stored in postgres", "resource", k.Plural)
		return catalog.NewPostgres[E, PT](k, d.pg), nil
	default:
		log.Info("catalog resource stored in memory", "resource", k.Plural)
		return catalog.NewMemory[E, PT](k), nil
	}
}
