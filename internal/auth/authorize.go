package auth

// Principal is an authenticated subject with resolved permissions.
type Principal struct {
	SubjectID   string
	Roles       []string
	Permissions map[string]struct{}
}

// NewPrincipal resolves the permissions of roles.
func NewPrincipal(subjectID string, roles []string) Principal {
	roles = dedupeRoles(roles)
	return Principal{SubjectID: subjectID, Roles: roles, Permissions: PermissionsFor(roles)}
}

// HasPermission reports whether the principal can execute action identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}
