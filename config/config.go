// Package config loads the gateway binary's configuration from a YAML file
// with environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/cache"
	"github.com/Keksclan/goRawrGate/policy"
	"github.com/Keksclan/goRawrGate/ratelimit"
	"github.com/Keksclan/goRawrGate/security"
)

// Config is the complete gateway configuration. Durations are written as
// Go duration strings ("5m", "15m").
type Config struct {
	Log       Log       `yaml:"log"`
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Cache     Cache     `yaml:"cache"`
	RateLimit RateLimit `yaml:"rateLimit"`
	Security  Security  `yaml:"security"`
	Auth      Auth      `yaml:"auth"`
	Audit     Audit     `yaml:"audit"`
	Redis     Redis     `yaml:"redis"`
	NATS      NATS      `yaml:"nats"`
	Postgres  Postgres  `yaml:"postgres"`
	Upstreams Upstreams `yaml:"upstreams"`
	Tracing   Tracing   `yaml:"tracing"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTP struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// GRPC configures the gRPC listener; an empty Addr disables it.
type GRPC struct {
	Addr string `yaml:"addr"`
}

type Cache struct {
	TTL             time.Duration `yaml:"ttl"`
	MaxSize         int           `yaml:"maxSize"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout"`
	JanitorInterval time.Duration `yaml:"janitorInterval"`
}

// RateLimit configures the auth and api limiters. Backend is "memory"
// (fixed window), "tokenbucket" (smoothed, per process) or "redis" (fixed
// window shared between instances).
type RateLimit struct {
	Window  time.Duration `yaml:"window"`
	AuthMax int           `yaml:"authMax"`
	Max     int           `yaml:"max"`
	Backend string        `yaml:"backend"`
}

type Security struct {
	SensitivePathPrefixes []string `yaml:"sensitivePathPrefixes"`
	TrustedProxies        []string `yaml:"trustedProxies"`
	ClientIPHeaders       []string `yaml:"clientIPHeaders"`
	RequiredHeaders       []string `yaml:"requiredHeaders"`
	MaxBodyBytes          int64    `yaml:"maxBodyBytes"`
	MaxQueryParamLength   int      `yaml:"maxQueryParamLength"`
	IPBlock               IPBlock  `yaml:"ipBlock"`
	HSTS                  bool     `yaml:"hsts"`
}

// IPBlock is disabled when CIDRs is empty.
type IPBlock struct {
	Mode  string   `yaml:"mode"`
	CIDRs []string `yaml:"cidrs"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwtSecret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
	DemoUsers bool          `yaml:"demoUsers"`
}

type Audit struct {
	Capacity int `yaml:"capacity"`
}

// Redis is disabled when Addr is empty.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATS is disabled when URL is empty.
type NATS struct {
	URL                 string `yaml:"url"`
	InvalidationSubject string `yaml:"invalidationSubject"`
	AuditSubjectPrefix  string `yaml:"auditSubjectPrefix"`
}

// Postgres is disabled when URL is empty.
type Postgres struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

// Upstreams maps each catalog resource to the base URL of its service.
// An empty URL serves the resource from memory or Postgres instead.
type Upstreams struct {
	Products string `yaml:"products"`
	Clients  string `yaml:"clients"`
	Orders   string `yaml:"orders"`
}

type Tracing struct {
	Stdout bool `yaml:"stdout"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Log: Log{Level: "info", Format: "text"},
		HTTP: HTTP{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		GRPC: GRPC{Addr: ":9090"},
		Cache: Cache{
			TTL:             cache.DefaultTTL,
			MaxSize:         cache.DefaultMaxSize,
			JanitorInterval: time.Minute,
		},
		RateLimit: RateLimit{
			Window:  ratelimit.DefaultWindow,
			AuthMax: ratelimit.DefaultAuthMax,
			Max:     ratelimit.DefaultAPIMax,
			Backend: "memory",
		},
		Security: Security{
			SensitivePathPrefixes: policy.DefaultSensitivePrefixes,
			RequiredHeaders:       []string{"User-Agent"},
			MaxBodyBytes:          security.DefaultMaxBodyBytes,
			MaxQueryParamLength:   security.DefaultMaxQueryParamLength,
			IPBlock:               IPBlock{Mode: "deny"},
			HSTS:                  true,
		},
		Auth: Auth{
			Issuer:    "gorawrgate",
			TokenTTL:  time.Hour,
			DemoUsers: true,
		},
		Audit: Audit{Capacity: audit.DefaultCapacity},
		NATS: NATS{
			InvalidationSubject: cache.DefaultInvalidationSubject,
			AuditSubjectPrefix:  audit.DefaultSubjectPrefix,
		},
		Postgres: Postgres{Migrate: true},
	}
}

// Load reads the YAML file at path over Default, then applies the
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("GATE_HTTP_ADDR", &c.HTTP.Addr)
	str("GATE_GRPC_ADDR", &c.GRPC.Addr)
	str("GATE_LOG_LEVEL", &c.Log.Level)
	str("GATE_LOG_FORMAT", &c.Log.Format)
	str("GATE_JWT_SECRET", &c.Auth.JWTSecret)
	str("GATE_RATE_LIMIT_BACKEND", &c.RateLimit.Backend)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("NATS_URL", &c.NATS.URL)
	str("DATABASE_URL", &c.Postgres.URL)
	str("PRODUCTS_SERVICE_URL", &c.Upstreams.Products)
	str("CLIENTS_SERVICE_URL", &c.Upstreams.Clients)
	str("ORDERS_SERVICE_URL", &c.Upstreams.Orders)

	if v, ok := lookup("GATE_SENSITIVE_PATHS"); ok {
		c.Security.SensitivePathPrefixes = splitList(v)
	}
	if v, ok := lookup("GATE_TRUSTED_PROXIES"); ok {
		c.Security.TrustedProxies = splitList(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"GATE_CACHE_MAX_SIZE", &c.Cache.MaxSize},
		{"GATE_RATE_LIMIT_MAX", &c.RateLimit.Max},
		{"GATE_RATE_LIMIT_AUTH_MAX", &c.RateLimit.AuthMax},
	}
	for _, e := range ints {
		if v, ok := lookup(e.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"GATE_CACHE_TTL", &c.Cache.TTL},
		{"GATE_RATE_LIMIT_WINDOW", &c.RateLimit.Window},
	}
	for _, e := range durations {
		if v, ok := lookup(e.key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = d
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Cache.TTL <= 0 || c.Cache.MaxSize <= 0 {
		errs = append(errs, errors.New("cache.ttl and cache.maxSize must be positive"))
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 || c.RateLimit.AuthMax <= 0 {
		errs = append(errs, errors.New("rateLimit.window, rateLimit.max and rateLimit.authMax must be positive"))
	}
	switch c.RateLimit.Backend {
	case "memory", "tokenbucket":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("rateLimit.backend redis needs redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("rateLimit.backend %q is not memory, tokenbucket or redis", c.RateLimit.Backend))
	}
	if _, err := security.ParseMode(c.Security.IPBlock.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwtSecret must be at least 32 bytes"))
	}
	return errors.Join(errs...)
}

// LogLevel maps Log.Level to a slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Policies returns the policy groups for the configured limits and
// sensitive prefixes.
func (c *Config) Policies() []*policy.GroupBuilder {
	authRL := policy.RateLimitRule{Max: c.RateLimit.AuthMax, Window: c.RateLimit.Window}
	apiRL := policy.RateLimitRule{Max: c.RateLimit.Max, Window: c.RateLimit.Window}
	return policy.DefaultsWith(authRL, apiRL, c.Security.SensitivePathPrefixes)
}
