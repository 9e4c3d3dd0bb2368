package route

import (
	"net/url"
	"strings"

	"agentdesk.io/internal/auth"
	"agentdesk.io/internal/session"
)

// Kind tells the edge what to do with a request.
type Kind int

const (
	Allow Kind = iota
	Redirect
)

func (k Kind) String() string {
	if k == Redirect {
		return "redirect"
	}
	return "allow"
}

// Reason explains a redirect.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonUnauthenticated      Reason = "unauthenticated"
	ReasonProviderUnavailable  Reason = "provider_unavailable"
	ReasonProfileLookupFailed  Reason = "profile_lookup_failed"
	ReasonProfileMissing       Reason = "profile_missing"
	ReasonInactiveAccount      Reason = "inactive_account"
	ReasonInsufficientRole     Reason = "insufficient_role"
	ReasonAlreadyAuthenticated Reason = "already_authenticated"
	ReasonCanonicalize         Reason = "canonicalize"
)

// Param is one query parameter of a redirect target. Order is preserved.
type Param struct {
	Key   string
	Value string
}

// Action is the outcome of Authorize.
type Action struct {
	Kind   Kind
	Target string
	Query  []Param
	Reason Reason
}

// Location renders Target and Query as a relative URL. Slashes in values stay literal.
func (a Action) Location() string {
	if len(a.Query) == 0 {
		return a.Target
	}
	var b strings.Builder
	b.WriteString(a.Target)
	for i, p := range a.Query {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(escape(p.Key))
		b.WriteByte('=')
		b.WriteString(escape(p.Value))
	}
	return b.String()
}

// Denied reports whether the action blocks a non-public request.
func (a Action) Denied() bool {
	return a.Kind == Redirect && a.Reason != ReasonAlreadyAuthenticated && a.Reason != ReasonCanonicalize
}

// Input is the per-request state the decision is made from. Nil pointers mean absent.
type Input struct {
	Identity   *auth.Identity
	Profile    *auth.Profile
	SessionErr session.ErrorKind
}

func allow() Action { return Action{Kind: Allow} }

func redirect(target string, reason Reason, query ...Param) Action {
	return Action{Kind: Redirect, Target: target, Query: query, Reason: reason}
}

// Authorize decides whether pathname may be served to the visitor described by in.
// It is pure: the same arguments always yield the same Action.
func Authorize(pathname string, in Input) Action {
	p := Normalize(pathname)
	scope := Classify(p)

	if scope == ScopePublic {
		if in.Identity != nil && in.Profile.Active() && (p == "/" || hasPrefix(p, "/auth")) {
			return redirect(RoleHome(in.Profile.Role), ReasonAlreadyAuthenticated)
		}
		return allow()
	}

	// Protected tables and anything unlisted share the same gate.
	switch {
	case in.SessionErr == session.KindProviderUnavailable:
		return redirect(LoginPath, ReasonProviderUnavailable,
			Param{"redirectTo", p}, Param{"error", "session-unavailable"})
	case in.Identity == nil:
		return redirect(LoginPath, ReasonUnauthenticated, Param{"redirectTo", p})
	case in.SessionErr == session.KindProfileLookupFailed:
		return redirect(LoginPath, ReasonProfileLookupFailed, Param{"error", "profile-lookup-failed"})
	case in.Profile == nil:
		return redirect(LoginPath, ReasonProfileMissing, Param{"error", "profile-not-found"})
	case !in.Profile.Active():
		return redirect(PendingPath, ReasonInactiveAccount, Param{"status", statusParam(in.Profile.Status)})
	}

	role := in.Profile.Role
	switch scope {
	case ScopeAdmin:
		if !auth.HasEqualOrHigherRole(role, auth.RoleAdmin) {
			return redirect(UnauthorizedPath, ReasonInsufficientRole)
		}
	case ScopeSalesManager:
		if !auth.HasEqualOrHigherRole(role, auth.RoleSalesManager) {
			return redirect(UnauthorizedPath, ReasonInsufficientRole)
		}
	case ScopeProtected, ScopeUnlisted, ScopePublic:
	}

	if p == DashboardPath {
		if home := RoleHome(role); home != DashboardPath {
			return redirect(home, ReasonCanonicalize)
		}
	}
	return allow()
}

func statusParam(s auth.Status) string {
	if s == auth.StatusUnknown {
		return "unknown"
	}
	return string(s)
}

func escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "%2F", "/")
}
