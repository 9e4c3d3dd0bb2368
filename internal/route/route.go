// Package route classifies request paths against the workspace route tables
// and decides whether a visitor may proceed.
package route

import (
	"path"
	"strings"

	"agentdesk.io/internal/auth"
)

// Scope is the route table a pathname falls into.
type Scope int

const (
	ScopeUnlisted Scope = iota
	ScopePublic
	ScopeAdmin
	ScopeSalesManager
	ScopeProtected
)

func (s Scope) String() string {
	switch s {
	case ScopePublic:
		return "public"
	case ScopeAdmin:
		return "admin"
	case ScopeSalesManager:
		return "sales_manager"
	case ScopeProtected:
		return "protected"
	default:
		return "unlisted"
	}
}

const (
	LoginPath        = "/auth/login"
	PendingPath      = "/auth/pending"
	UnauthorizedPath = "/unauthorized"
	DashboardPath    = "/dashboard"
)

// Route tables. Entries match themselves and anything below them.
var (
	publicRoutes = []string{
		"/auth/login",
		"/auth/register",
		"/auth/forgot-password",
		"/auth/setup-password",
		"/auth/verify-email",
		"/auth/reset-password",
		PendingPath,
		UnauthorizedPath,
	}

	adminRoutes = []string{
		"/admin",
		"/admin/users",
		"/admin/permissions",
		"/admin/system-settings",
		"/admin/audit-logs",
		"/admin/invitations",
	}

	salesManagerRoutes = []string{
		"/dashboard/sales",
		"/reports/team",
		"/analytics/performance",
		"/team-management",
	}

	protectedRoutes = []string{
		DashboardPath,
		"/profile",
		"/settings",
	}
)

// Normalize cleans pathname so "/admin/../profile" and "//admin" cannot dodge a table.
func Normalize(pathname string) string {
	if pathname == "" {
		return "/"
	}
	if !strings.HasPrefix(pathname, "/") {
		pathname = "/" + pathname
	}
	return path.Clean(pathname)
}

// Classify returns the scope of an already normalized pathname.
func Classify(pathname string) Scope {
	switch {
	case pathname == "/" || matchAny(pathname, publicRoutes):
		return ScopePublic
	case matchAny(pathname, adminRoutes):
		return ScopeAdmin
	case matchAny(pathname, salesManagerRoutes):
		return ScopeSalesManager
	case matchAny(pathname, protectedRoutes):
		return ScopeProtected
	default:
		return ScopeUnlisted
	}
}

// RoleHome is the landing page for role.
func RoleHome(role auth.Role) string {
	switch role {
	case auth.RoleAdmin:
		return "/admin/dashboard"
	case auth.RoleSalesManager:
		return "/dashboard/sales"
	case auth.RoleRecruiter:
		return "/dashboard/recruiter"
	case auth.RoleUnknown:
		return DashboardPath
	}
	return DashboardPath
}

// AllowedPrefixes lists the route prefixes an active visitor with role may open.
func AllowedPrefixes(role auth.Role) []string {
	out := append([]string(nil), protectedRoutes...)
	switch role {
	case auth.RoleAdmin:
		out = append(out, salesManagerRoutes...)
		out = append(out, adminRoutes...)
	case auth.RoleSalesManager:
		out = append(out, salesManagerRoutes...)
	case auth.RoleRecruiter, auth.RoleUnknown:
	}
	return out
}

// Allows reports whether pathname sits under one of role's allowed prefixes.
func Allows(role auth.Role, pathname string) bool {
	return matchAny(Normalize(pathname), AllowedPrefixes(role))
}

// Canonical maps a pathname to a low-cardinality label for metrics.
func Canonical(pathname string) string {
	p := Normalize(pathname)
	if p == "/" {
		return "/"
	}
	best := ""
	for _, table := range [][]string{publicRoutes, adminRoutes, salesManagerRoutes, protectedRoutes} {
		for _, prefix := range table {
			if hasPrefix(p, prefix) && len(prefix) > len(best) {
				best = prefix
			}
		}
	}
	if best == "" {
		return "unlisted"
	}
	return best
}

func matchAny(pathname string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasPrefix(pathname, prefix) {
			return true
		}
	}
	return false
}

// hasPrefix matches whole segments: "/admin" covers "/admin/x" but not "/administrator".
func hasPrefix(pathname, prefix string) bool {
	if pathname == prefix {
		return true
	}
	return strings.HasPrefix(pathname, prefix) && pathname[len(prefix)] == '/'
}
