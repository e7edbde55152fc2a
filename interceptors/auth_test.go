package interceptors

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/auth"
	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/security"
)

// fakeAuthenticator accepts only "valid-token".
type fakeAuthenticator struct{}

func (fakeAuthenticator) Authenticate(_ context.Context, token string) (contextx.Actor, error) {
	if token != "valid-token" {
		return contextx.Actor{}, auth.ErrInvalidToken
	}
	return contextx.Actor{Subject: "user-1", Roles: security.Roles(security.RoleUser)}, nil
}

func withToken(ctx context.Context, header string) context.Context {
	return metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", header))
}

func TestAuthUnary(t *testing.T) {
	events := audit.New(audit.WithLogger(discard()))
	ic := AuthUnary(auth.MetadataAuth(fakeAuthenticator{}), events)
	info := &grpc.UnaryServerInfo{FullMethod: "/gate.Ping/Ping"}

	var actor contextx.Actor
	var authenticated bool
	handler := func(ctx context.Context, _ any) (any, error) {
		actor, authenticated = contextx.ActorFromContext(ctx)
		return "ok", nil
	}

	if _, err := ic(t.Context(), "req", info, handler); err != nil || authenticated {
		t.Fatalf("anonymous call: err=%v authenticated=%v", err, authenticated)
	}

	if _, err := ic(withToken(t.Context(), "Bearer valid-token"), "req", info, handler); err != nil {
		t.Fatalf("valid token: %v", err)
	}
	if !authenticated || actor.Subject != "user-1" {
		t.Fatalf("actor = %+v, %v", actor, authenticated)
	}

	authenticated = false
	for _, header := range []string{"Bearer nope", "Basic x"} {
		_, err := ic(withToken(t.Context(), header), "req", info, handler)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("%q: code = %v, want Unauthenticated", header, status.Code(err))
		}
	}
	if authenticated {
		t.Fatal("handler reached with a bad token")
	}
	if got := events.Stats().EventTypes[audit.InvalidToken]; got != 2 {
		t.Fatalf("INVALID_TOKEN events = %d, want 2", got)
	}
}

func TestAuthUnary_StatusErrorPassthrough(t *testing.T) {
	fn := func(ctx context.Context, _ string, _ metadata.MD) (context.Context, error) {
		return ctx, status.Error(codes.PermissionDenied, "forbidden")
	}
	events := audit.New(audit.WithLogger(discard()))
	ic := AuthUnary(fn, events)

	_, err := ic(t.Context(), "req", &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, okHandler)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("code = %v, want PermissionDenied", status.Code(err))
	}
	if events.Stats().TotalEvents != 0 {
		t.Fatal("status errors from the auth func are not token failures")
	}
}
