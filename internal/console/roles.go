package console

import "github.com/WailSalutem-Health-Care/user-directory/internal/users"

// IsAdminRole reports ADMIN or SUPER_ADMIN
func IsAdminRole(r users.Role) bool {
	return r == users.RoleAdmin || r == users.RoleSuperAdmin
}

// IsManagerRole reports any admin role or MANAGER
func IsManagerRole(r users.Role) bool {
	return IsAdminRole(r) || r == users.RoleManager
}
