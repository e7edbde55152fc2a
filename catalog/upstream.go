package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Keksclan/goRawrGate/breaker"
	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/retry"
)

// UpstreamError is a non-success answer from an upstream service.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: status %d: %s", e.Status, e.Message)
}

// Temporary reports whether repeating the request may succeed.
func (e *UpstreamError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Headers forwarded to upstream services.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderUser      = "X-Gate-User"
	HeaderRoles     = "X-Gate-Roles"
)

const maxUpstreamBody = 4 << 20

// Upstream is a Repository relaying to an HTTP service that exposes the
// resource under /<plural> and /<plural>/{id} with plain JSON records.
// Calls are retried with backoff on transient failures and pass through a
// circuit breaker, so a dead upstream fails fast with [breaker.ErrOpen].
type Upstream[E any, PT ptr[E]] struct {
	kind    Kind
	base    *url.URL
	client  *http.Client
	retry   retry.Config
	breaker *breaker.Breaker
	log     *slog.Logger
}

// UpstreamOption configures an Upstream.
type UpstreamOption func(*upstreamConfig)

type upstreamConfig struct {
	client  *http.Client
	retry   retry.Config
	breaker *breaker.Breaker
	log     *slog.Logger
}

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(c *http.Client) UpstreamOption {
	return func(cfg *upstreamConfig) { cfg.client = c }
}

// WithRetry replaces retry.Default.
func WithRetry(r retry.Config) UpstreamOption {
	return func(cfg *upstreamConfig) { cfg.retry = r }
}

// WithBreaker shares b instead of a breaker built from breaker.Default.
func WithBreaker(b *breaker.Breaker) UpstreamOption {
	return func(cfg *upstreamConfig) { cfg.breaker = b }
}

// WithUpstreamLogger sets the logger for breaker transitions.
func WithUpstreamLogger(l *slog.Logger) UpstreamOption {
	return func(cfg *upstreamConfig) { cfg.log = l }
}

// NewUpstream creates a relay for kind k rooted at baseURL.
func NewUpstream[E any, PT ptr[E]](k Kind, baseURL string, opts ...UpstreamOption) (*Upstream[E, PT], error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("catalog: upstream %s: %w", k, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("catalog: upstream %s: unsupported scheme %q", k, base.Scheme)
	}

	cfg := upstreamConfig{
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry.Default,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.breaker == nil {
		bc := breaker.Default
		bc.OnStateChange = func(from, to breaker.State) {
			cfg.log.Warn("upstream circuit changed state", "resource", k.Plural, "from", from.String(), "to", to.String())
		}
		cfg.breaker = breaker.New(bc)
	}

	return &Upstream[E, PT]{
		kind:    k,
		base:    base,
		client:  cfg.client,
		retry:   cfg.retry,
		breaker: cfg.breaker,
		log:     cfg.log,
	}, nil
}

// List fetches /<plural>.
func (u *Upstream[E, PT]) List(ctx context.Context) ([]PT, error) {
	var es []E
	if err := u.do(ctx, http.MethodGet, "", nil, &es); err != nil {
		return nil, err
	}
	out := make([]PT, len(es))
	for i := range es {
		out[i] = PT(&es[i])
	}
	return out, nil
}

// Get fetches /<plural>/{id}.
func (u *Upstream[E, PT]) Get(ctx context.Context, id string) (PT, error) {
	var e E
	if err := u.do(ctx, http.MethodGet, id, nil, &e); err != nil {
		return nil, u.mapNotFound(err, id)
	}
	return PT(&e), nil
}

// Create validates v locally and POSTs it.
func (u *Upstream[E, PT]) Create(ctx context.Context, v PT) (PT, error) {
	if err := prepare(v); err != nil {
		return nil, err
	}
	var e E
	if err := u.do(ctx, http.MethodPost, "", v, &e); err != nil {
		return nil, err
	}
	return PT(&e), nil
}

// Update validates v locally and PUTs it to /<plural>/{id}.
func (u *Upstream[E, PT]) Update(ctx context.Context, id string, v PT) (PT, error) {
	if err := prepare(v); err != nil {
		return nil, err
	}
	var e E
	if err := u.do(ctx, http.MethodPut, id, v, &e); err != nil {
		return nil, u.mapNotFound(err, id)
	}
	return PT(&e), nil
}

// Delete sends DELETE /<plural>/{id}.
func (u *Upstream[E, PT]) Delete(ctx context.Context, id string) error {
	return u.mapNotFound(u.do(ctx, http.MethodDelete, id, nil, nil), id)
}

func (u *Upstream[E, PT]) mapNotFound(err error, id string) error {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Status == http.StatusNotFound {
		return notFound(u.kind, id)
	}
	return err
}

// transient reports whether err reflects upstream health, as opposed to a
// rejected request or a caller that went away. Only transient errors are
// retried and counted by the breaker.
func transient(err error) bool {
	var (
		ue *UpstreamError
		ve *ValidationError
	)
	switch {
	case errors.As(err, &ue):
		return ue.Temporary()
	case errors.As(err, &ve):
		return false
	default:
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
}

func (u *Upstream[E, PT]) do(ctx context.Context, method, id string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	_, err := retry.Do(ctx, u.retry, func(ctx context.Context) (struct{}, error) {
		var callErr error
		err := u.breaker.Execute(func() error {
			callErr = u.roundTrip(ctx, method, id, body, out)
			return callErr
		}, transient)
		if errors.Is(err, breaker.ErrOpen) {
			return struct{}{}, retry.Permanent(err)
		}
		if callErr != nil && !transient(callErr) {
			return struct{}{}, retry.Permanent(callErr)
		}
		return struct{}{}, callErr
	})
	return err
}

func (u *Upstream[E, PT]) roundTrip(ctx context.Context, method, id string, body []byte, out any) error {
	target := u.base.JoinPath(u.kind.Plural)
	if id != "" {
		target = target.JoinPath(id)
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid := contextx.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set(HeaderRequestID, rid)
	}
	if a, ok := contextx.ActorFromContext(ctx); ok {
		req.Header.Set(HeaderUser, a.Username)
		req.Header.Set(HeaderRoles, a.Roles.String())
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	lr := io.LimitReader(resp.Body, maxUpstreamBody)
	if resp.StatusCode >= 300 {
		return upstreamError(resp.StatusCode, lr)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(lr).Decode(out); err != nil {
		return fmt.Errorf("upstream: decode %s: %w", u.kind, err)
	}
	return nil
}

// upstreamError turns an error response into a ValidationError (400) or
// an UpstreamError. It understands {"error": "..."} bodies.
func upstreamError(status int, r io.Reader) error {
	raw, _ := io.ReadAll(r)
	msg := strings.TrimSpace(string(raw))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if status == http.StatusBadRequest {
		return &ValidationError{Reason: msg}
	}
	return &UpstreamError{Status: status, Message: msg}
}
