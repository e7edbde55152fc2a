package security

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is a single privilege an authenticated identity can hold. Roles are
// an enumeration so that a misspelled role is a compile error rather than a
// silently unmatched string.
type Role uint8

const (
	// RoleUser is held by every customer account.
	RoleUser Role = iota
	// RoleAdmin grants catalog writes and the administrative endpoints.
	RoleAdmin

	numRoles
)

var roleNames = [numRoles]string{
	RoleUser:  "user",
	RoleAdmin: "admin",
}

// String returns the wire name of the role.
func (r Role) String() string {
	if r < numRoles {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ParseRole maps a wire name (as found in a token claim) to a Role.
func ParseRole(s string) (Role, bool) {
	for i, name := range roleNames {
		if strings.EqualFold(s, name) {
			return Role(i), true
		}
	}
	return 0, false
}

// RoleSet is a set of roles stored as a bit mask.
type RoleSet uint32

// Roles builds a RoleSet from the given roles.
func Roles(rs ...Role) RoleSet {
	var s RoleSet
	for _, r := range rs {
		s |= 1 << r
	}
	return s
}

// ParseRoles converts claim strings into a RoleSet. Unknown names are
// returned separately so callers can decide whether to reject them.
func ParseRoles(names []string) (RoleSet, []string) {
	var (
		s       RoleSet
		unknown []string
	)
	for _, n := range names {
		r, ok := ParseRole(n)
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		s |= 1 << r
	}
	return s, unknown
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool { return s&(1<<r) != 0 }

// Empty reports whether the set holds no role.
func (s RoleSet) Empty() bool { return s == 0 }

// Intersects reports whether s and o share at least one role.
func (s RoleSet) Intersects(o RoleSet) bool { return s&o != 0 }

// Strings lists the role names in declaration order.
func (s RoleSet) Strings() []string {
	out := make([]string, 0, numRoles)
	for r := Role(0); r < numRoles; r++ {
		if s.Has(r) {
			out = append(out, r.String())
		}
	}
	return out
}

func (s RoleSet) String() string { return strings.Join(s.Strings(), ",") }

// MarshalJSON encodes the set as an array of role names.
func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes an array of role names. Unknown names are an error.
func (s *RoleSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	set, unknown := ParseRoles(names)
	if len(unknown) > 0 {
		return fmt.Errorf("security: unknown roles %v", unknown)
	}
	*s = set
	return nil
}
