package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/security"
)

// MinSecretLen is the shortest HMAC secret accepted.
const MinSecretLen = 32

// DefaultIssuer is the "iss" claim written and expected by default.
const DefaultIssuer = "gorawrgate"

var errShortSecret = fmt.Errorf("auth: secret must be at least %d bytes", MinSecretLen)

// Claims is the token payload.
type Claims struct {
	jwt.Claims
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// JWT verifies HS256 tokens. Verified tokens are cached until they expire
// so that repeated requests skip signature checks.
type JWT struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
	cache  *ristretto.Cache[string, contextx.Actor]
}

// JWTOption configures a JWT verifier.
type JWTOption func(*JWT)

// WithIssuer sets the expected issuer. Defaults to DefaultIssuer.
func WithIssuer(iss string) JWTOption {
	return func(j *JWT) { j.issuer = iss }
}

// WithLeeway sets the clock skew tolerated on time claims.
func WithLeeway(d time.Duration) JWTOption {
	return func(j *JWT) { j.leeway = d }
}

// WithJWTClock replaces the wall clock, for tests.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(j *JWT) { j.now = now }
}

// NewJWT creates a verifier for tokens signed with secret.
func NewJWT(secret []byte, opts ...JWTOption) (*JWT, error) {
	if len(secret) < MinSecretLen {
		return nil, errShortSecret
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, contextx.Actor]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	j := &JWT{
		key:    secret,
		issuer: DefaultIssuer,
		leeway: jwt.DefaultLeeway,
		now:    time.Now,
		cache:  rc,
	}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// Authenticate implements Authenticator.
func (j *JWT) Authenticate(_ context.Context, raw string) (contextx.Actor, error) {
	if a, ok := j.cache.Get(raw); ok {
		return a, nil
	}

	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return contextx.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var c Claims
	if err := tok.Claims(j.key, &c); err != nil {
		return contextx.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	now := j.now()
	if err := c.ValidateWithLeeway(jwt.Expected{Issuer: j.issuer, Time: now}, j.leeway); err != nil {
		return contextx.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Expiry == nil {
		return contextx.Actor{}, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}

	// Unknown role names grant nothing.
	roles, _ := security.ParseRoles(c.Roles)
	a := contextx.Actor{Subject: c.Subject, Username: c.Username, Roles: roles}

	if ttl := c.Expiry.Time().Sub(now); ttl > 0 {
		j.cache.SetWithTTL(raw, a, 1, ttl)
	}
	return a, nil
}

// Close releases the token cache.
func (j *JWT) Close() { j.cache.Close() }

// Issuer signs HS256 tokens.
type Issuer struct {
	signer jose.Signer
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// DefaultTokenTTL is how long issued tokens stay valid.
const DefaultTokenTTL = time.Hour

// NewIssuer creates an Issuer writing iss and expiring tokens after ttl
// (ttl <= 0 selects DefaultTokenTTL).
func NewIssuer(secret []byte, iss string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < MinSecretLen {
		return nil, errShortSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if iss == "" {
		iss = DefaultIssuer
	}
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: signer: %w", err)
	}
	return &Issuer{signer: sig, issuer: iss, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for u and its expiry.
func (i *Issuer) Issue(u User) (string, time.Time, error) {
	if u.ID == "" {
		return "", time.Time{}, errors.New("auth: user without id")
	}
	now := i.now()
	exp := now.Add(i.ttl)
	c := Claims{
		Claims: jwt.Claims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(exp),
		},
		Username: u.Username,
		Roles:    u.Roles.Strings(),
	}
	raw, err := jwt.Signed(i.signer).Claims(c).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign: %w", err)
	}
	return raw, exp, nil
}
