package contextx

import (
	"context"

	"github.com/Keksclan/goRawrGate/security"
)

// Actor is the authenticated identity behind a request, as verified from
// its bearer token. Anonymous requests carry no Actor.
//
//	ctx = contextx.WithActor(ctx, contextx.Actor{Subject: "2", Username: "bob", Roles: security.Roles(security.RoleAdmin)})
//	if a, ok := contextx.ActorFromContext(ctx); ok && a.Holds(security.Roles(security.RoleAdmin)) { ... }
type Actor struct {
	Subject  string
	Username string
	Roles    security.RoleSet
}

// Holds reports whether the actor has at least one role of required. An
// empty requirement is always met.
func (a Actor) Holds(required security.RoleSet) bool {
	return required.Empty() || a.Roles.Intersects(required)
}

// WithActor returns a derived context carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the Actor stored in ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
