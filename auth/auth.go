// Package auth verifies bearer tokens and user credentials and turns them
// into a [contextx.Actor].
package auth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/Keksclan/goRawrGate/contextx"
)

var (
	// ErrInvalidToken is returned for malformed, badly signed or expired
	// tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidCredentials is returned when a username/password pair does
	// not match.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// Authenticator verifies a raw bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (contextx.Actor, error)
}

// AuthFunc authenticates a gRPC request. It receives the request context,
// the full method name and the incoming metadata. On success it returns a
// (possibly enriched) context; on failure it returns an error.
type AuthFunc func(ctx context.Context, fullMethod string, md metadata.MD) (context.Context, error)

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// MetadataAuth adapts an Authenticator to AuthFunc. Calls without an
// "authorization" entry stay anonymous; a present but invalid token fails.
func MetadataAuth(a Authenticator) AuthFunc {
	return func(ctx context.Context, _ string, md metadata.MD) (context.Context, error) {
		vals := md.Get("authorization")
		if len(vals) == 0 {
			return ctx, nil
		}
		token, ok := BearerToken(vals[0])
		if !ok {
			return ctx, ErrInvalidToken
		}
		actor, err := a.Authenticate(ctx, token)
		if err != nil {
			return ctx, err
		}
		return contextx.WithActor(ctx, actor), nil
	}
}
