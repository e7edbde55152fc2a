package policy

import "strings"

// Resolver resolves a request path or full gRPC method name to the group
// and policy that govern it.
type Resolver struct {
	groups []*GroupBuilder
}

// NewResolver creates a Resolver from the supplied group builders.
func NewResolver(groups ...*GroupBuilder) *Resolver {
	return &Resolver{groups: groups}
}

// Resolve finds the best-matching group for target.
//
// Exact rules beat prefix rules, which beat regex rules. Within one kind the
// longer match wins, and on a full tie the group registered first wins.
// ok is false when nothing matches.
func (res *Resolver) Resolve(target string) (groupName string, pol *Policy, ok bool) {
	var best hit
	for _, g := range res.groups {
		for _, r := range g.rules {
			h, matched := r.hit(target)
			if matched && (!ok || h.beats(best)) {
				best, groupName, pol, ok = h, g.name, g.policy, true
			}
		}
	}
	return groupName, pol, ok
}

// hit describes how a rule matched a target.
type hit struct {
	kind   matchKind
	length int
}

func (h hit) beats(other hit) bool {
	if h.kind != other.kind {
		return h.kind < other.kind
	}
	return h.length > other.length
}

func (r rule) hit(target string) (hit, bool) {
	switch r.kind {
	case kindExact:
		return hit{kindExact, len(r.pattern)}, target == r.pattern
	case kindPrefix:
		return hit{kindPrefix, len(r.pattern)}, strings.HasPrefix(target, r.pattern)
	case kindRegex:
		if loc := r.re.FindStringIndex(target); loc != nil {
			return hit{kindRegex, loc[1] - loc[0]}, true
		}
	}
	return hit{}, false
}
