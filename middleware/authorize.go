package middleware

import (
	"net/http"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/security"
)

// check applies the identity and role requirement. It writes the rejection
// and returns false when the request may not proceed.
func check(w http.ResponseWriter, r *http.Request, events *audit.Log, required security.RoleSet, allowed func(contextx.Actor) bool) bool {
	a, ok := contextx.ActorFromContext(r.Context())
	if !ok {
		record(r, events, audit.UnauthorizedAccess, details(r))
		WriteError(w, http.StatusUnauthorized, CodeAuthRequired, "authentication required")
		return false
	}
	if !allowed(a) {
		d := details(r)
		d.RequiredRoles = required
		record(r, events, audit.InsufficientPrivileges, d)
		WriteError(w, http.StatusForbidden, CodeInsufficientPrivileges, "insufficient privileges")
		return false
	}
	return true
}

// RequireRoles admits requests whose actor holds at least one of roles.
// Anonymous requests get 401, others 403. With no roles it only requires
// an authenticated actor.
func RequireRoles(events *audit.Log, roles ...security.Role) Middleware {
	required := security.Roles(roles...)
	allowed := func(a contextx.Actor) bool { return a.Holds(required) }
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if check(w, r, events, required, allowed) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequireCustomer admits actors holding the user role but not the admin
// role.
func RequireCustomer(events *audit.Log) Middleware {
	required := security.Roles(security.RoleUser)
	allowed := func(a contextx.Actor) bool {
		return a.Roles.Has(security.RoleUser) && !a.Roles.Has(security.RoleAdmin)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if check(w, r, events, required, allowed) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Authorize enforces the identity and role requirements of the policy
// stored by Resolve. Requests without a policy pass.
func Authorize(events *audit.Log) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pol := PolicyFromContext(r.Context())
			if !pol.RequiresIdentity() {
				next.ServeHTTP(w, r)
				return
			}
			allowed := func(a contextx.Actor) bool { return a.Holds(pol.Roles) }
			if check(w, r, events, pol.Roles, allowed) {
				next.ServeHTTP(w, r)
			}
		})
	}
}
