package policy

import (
	"time"

	"github.com/Keksclan/goRawrGate/security"
)

// Reference limits: a strict limiter for authentication endpoints and a
// lenient one for general API traffic.
var (
	AuthRateLimit = RateLimitRule{Max: 5, Window: 15 * time.Minute}
	APIRateLimit  = RateLimitRule{Max: 100, Window: 15 * time.Minute}
)

// DefaultSensitivePrefixes are the path prefixes whose anonymous access is
// recorded as an attempted unauthorized access.
var DefaultSensitivePrefixes = []string{"/admin", "/protected"}

// Defaults returns the gateway's stock groups with the reference limits:
// "auth" for /auth/, one sensitive group per prefix in sensitive, and a
// catch-all "api" group. The sensitive groups and "api" draw on one shared
// general budget. The "/admin" prefix additionally requires the admin role.
func Defaults(sensitive []string) []*GroupBuilder {
	return DefaultsWith(AuthRateLimit, APIRateLimit, sensitive)
}

// DefaultsWith is Defaults with explicit limits for the auth group and for
// everything else.
func DefaultsWith(auth, api RateLimitRule, sensitive []string) []*GroupBuilder {
	if api.Scope == "" {
		api.Scope = "api"
	}
	groups := []*GroupBuilder{
		Group("auth").Prefix("/auth/").Policy(Policy{RateLimit: &auth}),
	}
	for _, p := range sensitive {
		pol := Policy{RateLimit: &api, Sensitive: true}
		if p == "/admin" {
			pol.Roles = security.Roles(security.RoleAdmin)
		}
		groups = append(groups, Group(p).Prefix(p).Policy(pol))
	}
	return append(groups, Group("api").Prefix("/").Policy(Policy{RateLimit: &api}))
}
