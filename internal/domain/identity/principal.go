package identity

import "slices"

// Role is a coarse-grained capability granted to a principal.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Principal is the authenticated caller of an operation.
// A nil *Principal stands for an anonymous caller.
type Principal struct {
	Username string
	Roles    []Role
}

// NewPrincipal creates a principal with the given roles
func NewPrincipal(username string, roles ...Role) *Principal {
	return &Principal{Username: username, Roles: roles}
}

// HasRole reports whether the principal was granted role. Nil-safe.
func (p *Principal) HasRole(role Role) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Roles, role)
}

// IsAuthenticated is false for the anonymous caller.
func (p *Principal) IsAuthenticated() bool {
	return p != nil && p.Username != ""
}

// UsernameOrNil returns a pointer to the username, or nil for anonymous callers.
func (p *Principal) UsernameOrNil() *string {
	if !p.IsAuthenticated() {
		return nil
	}
	name := p.Username
	return &name
}

// ParseRoles converts raw role names into roles, dropping unknown names.
// A "ROLE_" prefix is accepted.
func ParseRoles(names []string) []Role {
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		if len(n) > 5 && n[:5] == "ROLE_" {
			n = n[5:]
		}
		switch Role(n) {
		case RoleAdmin, RoleUser:
			roles = append(roles, Role(n))
		}
	}
	return roles
}
