package security

import (
	"fmt"
	"net/netip"
)

// Mode controls how the CIDR list is interpreted.
type Mode int

const (
	// AllowList only permits addresses inside at least one CIDR.
	AllowList Mode = iota
	// DenyList blocks addresses inside any CIDR and allows all others.
	DenyList
)

// ParseMode maps the configuration names "allow" and "deny" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "allow", "allowlist":
		return AllowList, nil
	case "deny", "denylist", "":
		return DenyList, nil
	}
	return 0, fmt.Errorf("ipblock: unknown mode %q", s)
}

// IPBlocker decides whether a resolved client address may reach the
// gateway at all.
type IPBlocker struct {
	mode  Mode
	cidrs []netip.Prefix
}

// NewIPBlocker parses the CIDR list up-front. A bare address is treated as
// a single-host prefix.
func NewIPBlocker(mode Mode, cidrs []string) (*IPBlocker, error) {
	prefixes, err := parsePrefixes(cidrs)
	if err != nil {
		return nil, fmt.Errorf("ipblock: invalid CIDR: %w", err)
	}
	return &IPBlocker{mode: mode, cidrs: prefixes}, nil
}

// Allowed reports whether addr passes the list. An invalid (unresolved)
// address is never allowed.
func (b *IPBlocker) Allowed(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	matched := matchesAny(addr, b.cidrs)
	switch b.mode {
	case AllowList:
		return matched
	case DenyList:
		return !matched
	default:
		return false
	}
}

func matchesAny(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			addr, addrErr := netip.ParseAddr(s)
			if addrErr != nil {
				return nil, fmt.Errorf("%q: %w", s, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
