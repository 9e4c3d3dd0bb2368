package auth

// Level ranks roles; higher levels supervise lower ones. Unknown roles rank 0.
func (r Role) Level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleSalesManager:
		return 2
	case RoleRecruiter:
		return 1
	default:
		return 0
	}
}

// HasEqualOrHigherRole reports whether role ranks at least as high as target.
// An unknown role never qualifies, whatever the target.
func HasEqualOrHigherRole(role, target Role) bool {
	return role.Level() > 0 && role.Level() >= target.Level()
}
