package identity

// Owned is implemented by records that are either global (no owner) or
// private to a single username.
type Owned interface {
	// OwnerUsername returns the owner and true for private records,
	// or "" and false for global ones.
	OwnerUsername() (string, bool)
}

// CanRead: global records are readable by anyone, private records only by their owner.
func CanRead(p *Principal, r Owned) bool {
	owner, private := r.OwnerUsername()
	if !private {
		return true
	}
	return p.IsAuthenticated() && p.Username == owner
}

// CanCreateGlobal is granted to ADMIN only.
func CanCreateGlobal(p *Principal) bool {
	return p.HasRole(RoleAdmin)
}

// CanCreatePrivate is granted to any authenticated ADMIN or USER. The record
// will be owned by p.Username, so a principal without one is refused.
func CanCreatePrivate(p *Principal) bool {
	return p.IsAuthenticated() && (p.HasRole(RoleAdmin) || p.HasRole(RoleUser))
}

// CanModify covers update and delete. Roles only matter for global records;
// a private record can be modified by its owner and nobody else.
func CanModify(p *Principal, r Owned) bool {
	owner, private := r.OwnerUsername()
	if !private {
		return p.HasRole(RoleAdmin)
	}
	return p.IsAuthenticated() && p.Username == owner
}
