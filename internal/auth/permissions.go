package auth

const (
	PermKYCSubmit = "kyc.submit"
	PermKYCRead   = "kyc.read"
	PermKYCReview = "kyc.review"
)

const (
	RoleReviewer   = "reviewer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// basePermissions are held by every authenticated subject.
var basePermissions = []string{PermKYCSubmit, PermKYCRead}

var rolePermissions = map[string][]string{
	RoleReviewer:   {PermKYCReview},
	RoleAdmin:      {PermKYCReview},
	RoleSuperAdmin: {PermKYCReview},
}

// PermissionsFor resolves the permission set of the given roles.
func PermissionsFor(roles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(basePermissions)+1)
	for _, p := range basePermissions {
		set[p] = struct{}{}
	}
	for _, r := range dedupeRoles(roles) {
		for _, p := range rolePermissions[r] {
			set[p] = struct{}{}
		}
	}
	return set
}
