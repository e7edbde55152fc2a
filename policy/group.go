// Package policy maps request paths (or gRPC full method names) to the
// protections that apply to them.
package policy

import (
	"regexp"
	"time"

	"github.com/Keksclan/goRawrGate/security"
)

// RateLimitRule describes a rate-limiting policy for a group of paths.
type RateLimitRule struct {
	// Max is the number of requests a client may make within Window.
	Max int
	// Window is the time window for the rate limit.
	Window time.Duration
	// Scope names the counters the rule draws on. Groups whose rules share
	// a Scope share one budget per client. Empty means the group's own name.
	Scope string
}

// Policy holds the configuration that applies to a matched group.
type Policy struct {
	RateLimit *RateLimitRule
	// AuthRequired rejects anonymous requests with 401.
	AuthRequired bool
	// Roles, when non-empty, requires the identity to hold at least one of
	// them (403 otherwise). It implies AuthRequired.
	Roles security.RoleSet
	// Sensitive marks paths whose anonymous access is recorded in the
	// audit log.
	Sensitive bool
	// Timeout bounds handler execution. Zero means no bound.
	Timeout time.Duration
}

// RequiresIdentity reports whether the policy rejects anonymous requests.
func (p *Policy) RequiresIdentity() bool {
	return p != nil && (p.AuthRequired || !p.Roles.Empty())
}

// matchKind distinguishes the three matching strategies.
type matchKind int

const (
	kindExact  matchKind = iota // highest priority
	kindPrefix                  // medium priority
	kindRegex                   // lowest priority
)

// rule is a single matching rule inside a group.
type rule struct {
	kind    matchKind
	pattern string         // used for exact and prefix matches
	re      *regexp.Regexp // used for regex matches
}

// GroupBuilder constructs a group with one or more matching rules and
// a policy.
type GroupBuilder struct {
	name   string
	rules  []rule
	policy *Policy
}

// Group starts building a new group with the given name.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Exact adds an exact-match rule for pattern.
func (g *GroupBuilder) Exact(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindExact, pattern: pattern})
	return g
}

// Prefix adds a prefix-match rule for pattern.
func (g *GroupBuilder) Prefix(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindPrefix, pattern: pattern})
	return g
}

// Regex adds a regex-match rule for pattern.
// The pattern is compiled immediately; an invalid regex will panic.
func (g *GroupBuilder) Regex(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: pattern, re: regexp.MustCompile(pattern)})
	return g
}

// Policy attaches a Policy to the group and returns the finished builder.
func (g *GroupBuilder) Policy(p Policy) *GroupBuilder {
	g.policy = &p
	return g
}
