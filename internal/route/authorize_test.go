package route

import (
	"testing"

	"agentdesk.io/internal/auth"
	"agentdesk.io/internal/session"
)

var testIdentity = &auth.Identity{UserID: "user-1", Email: "user@example.com"}

func activeProfile(role auth.Role) *auth.Profile {
	return profileWith(role, auth.StatusActive)
}

func profileWith(role auth.Role, status auth.Status) *auth.Profile {
	return &auth.Profile{ID: "p-1", UserID: testIdentity.UserID, Role: role, Status: status}
}

func signedIn(p *auth.Profile) Input {
	return Input{Identity: testIdentity, Profile: p}
}

func expectRedirect(t *testing.T, got Action, location string, reason Reason) {
	t.Helper()
	if got.Kind != Redirect {
		t.Fatalf("expected redirect to %q, got allow", location)
	}
	if got.Location() != location {
		t.Fatalf("location=%q, want %q", got.Location(), location)
	}
	if got.Reason != reason {
		t.Fatalf("reason=%q, want %q", got.Reason, reason)
	}
}

func expectAllow(t *testing.T, got Action) {
	t.Helper()
	if got.Kind != Allow {
		t.Fatalf("expected allow, got redirect to %q (%s)", got.Location(), got.Reason)
	}
}

func TestScenarios(t *testing.T) {
	t.Run("A anonymous admin page", func(t *testing.T) {
		expectRedirect(t, Authorize("/admin/users", Input{}), "/auth/login?redirectTo=/admin/users", ReasonUnauthenticated)
	})
	t.Run("B sales manager dashboard", func(t *testing.T) {
		expectRedirect(t, Authorize("/dashboard", signedIn(activeProfile(auth.RoleSalesManager))), "/dashboard/sales", ReasonCanonicalize)
	})
	t.Run("C recruiter on sales page", func(t *testing.T) {
		expectRedirect(t, Authorize("/dashboard/sales", signedIn(activeProfile(auth.RoleRecruiter))), "/unauthorized", ReasonInsufficientRole)
	})
	t.Run("D pending recruiter", func(t *testing.T) {
		in := signedIn(profileWith(auth.RoleRecruiter, auth.StatusPending))
		expectRedirect(t, Authorize("/profile", in), "/auth/pending?status=pending", ReasonInactiveAccount)
	})
	t.Run("E admin on login page", func(t *testing.T) {
		expectRedirect(t, Authorize("/auth/login", signedIn(activeProfile(auth.RoleAdmin))), "/admin/dashboard", ReasonAlreadyAuthenticated)
	})
}

func TestPublicRoutesAllowAnonymous(t *testing.T) {
	expectAllow(t, Authorize("/", Input{}))
	for _, p := range publicRoutes {
		expectAllow(t, Authorize(p, Input{}))
		expectAllow(t, Authorize(p+"/nested", Input{}))
	}
}

func TestPublicRoutesAllowDuringSessionErrors(t *testing.T) {
	expectAllow(t, Authorize("/auth/login", Input{SessionErr: session.KindProviderUnavailable}))
	expectAllow(t, Authorize("/auth/login", Input{Identity: testIdentity, SessionErr: session.KindProfileLookupFailed}))
}

func TestAuthNamespaceBouncesActiveVisitors(t *testing.T) {
	for _, role := range auth.Roles {
		for _, p := range publicRoutes {
			if !hasPrefix(p, "/auth") {
				continue
			}
			got := Authorize(p, signedIn(activeProfile(role)))
			expectRedirect(t, got, RoleHome(role), ReasonAlreadyAuthenticated)
		}
	}
}

func TestAuthNamespaceAllowsInactiveVisitors(t *testing.T) {
	in := signedIn(profileWith(auth.RoleRecruiter, auth.StatusInactive))
	expectAllow(t, Authorize("/auth/login", in))
	expectAllow(t, Authorize("/auth/pending", in))
	expectAllow(t, Authorize("/auth/login", Input{Identity: testIdentity}))
}

func TestRootPolicy(t *testing.T) {
	expectAllow(t, Authorize("/", Input{}))
	expectAllow(t, Authorize("/", signedIn(profileWith(auth.RoleAdmin, auth.StatusInvited))))
	expectRedirect(t, Authorize("/", signedIn(activeProfile(auth.RoleRecruiter))), "/dashboard/recruiter", ReasonAlreadyAuthenticated)
}

func TestAdminRoutesRejectNonAdmins(t *testing.T) {
	for _, role := range []auth.Role{auth.RoleSalesManager, auth.RoleRecruiter, auth.RoleUnknown} {
		for _, p := range adminRoutes {
			expectRedirect(t, Authorize(p, signedIn(activeProfile(role))), "/unauthorized", ReasonInsufficientRole)
		}
	}
	for _, p := range adminRoutes {
		expectAllow(t, Authorize(p, signedIn(activeProfile(auth.RoleAdmin))))
	}
}

func TestSalesRoutes(t *testing.T) {
	for _, p := range salesManagerRoutes {
		expectAllow(t, Authorize(p, signedIn(activeProfile(auth.RoleAdmin))))
		expectAllow(t, Authorize(p, signedIn(activeProfile(auth.RoleSalesManager))))
		expectRedirect(t, Authorize(p, signedIn(activeProfile(auth.RoleRecruiter))), "/unauthorized", ReasonInsufficientRole)
		expectRedirect(t, Authorize(p, signedIn(activeProfile(auth.RoleUnknown))), "/unauthorized", ReasonInsufficientRole)
	}
}

func TestProtectedRoutesRequireIdentity(t *testing.T) {
	all := append(append(append([]string{}, protectedRoutes...), adminRoutes...), salesManagerRoutes...)
	for _, p := range all {
		expectRedirect(t, Authorize(p, Input{}), "/auth/login?redirectTo="+p, ReasonUnauthenticated)
		// A profile without an identity is not a session.
		expectRedirect(t, Authorize(p, Input{Profile: activeProfile(auth.RoleAdmin)}), "/auth/login?redirectTo="+p, ReasonUnauthenticated)
	}
}

func TestUnlistedRoutesDenyByDefault(t *testing.T) {
	expectRedirect(t, Authorize("/candidates", Input{}), "/auth/login?redirectTo=/candidates", ReasonUnauthenticated)
	expectAllow(t, Authorize("/candidates", signedIn(activeProfile(auth.RoleRecruiter))))
}

func TestSessionErrors(t *testing.T) {
	got := Authorize("/profile", Input{SessionErr: session.KindProviderUnavailable})
	expectRedirect(t, got, "/auth/login?redirectTo=/profile&error=session-unavailable", ReasonProviderUnavailable)

	got = Authorize("/profile", Input{Identity: testIdentity, SessionErr: session.KindProfileLookupFailed})
	expectRedirect(t, got, "/auth/login?error=profile-lookup-failed", ReasonProfileLookupFailed)

	got = Authorize("/profile", Input{Identity: testIdentity})
	expectRedirect(t, got, "/auth/login?error=profile-not-found", ReasonProfileMissing)
}

func TestUnknownStatusIsInactive(t *testing.T) {
	got := Authorize("/settings", signedIn(profileWith(auth.RoleAdmin, auth.StatusUnknown)))
	expectRedirect(t, got, "/auth/pending?status=unknown", ReasonInactiveAccount)
}

func TestSegmentAwareMatching(t *testing.T) {
	cases := map[string]Scope{
		"/admin":               ScopeAdmin,
		"/admin/users/42":      ScopeAdmin,
		"/administrator":       ScopeUnlisted,
		"/dashboard":           ScopeProtected,
		"/dashboard/sales":     ScopeSalesManager,
		"/dashboard/salesy":    ScopeProtected,
		"/auth/login":          ScopePublic,
		"/auth/loginx":         ScopeUnlisted,
		"/unauthorized":        ScopePublic,
		"/":                    ScopePublic,
		"/profile/../admin":    ScopeAdmin,
		"//admin":              ScopeAdmin,
		"/team-management/x/y": ScopeSalesManager,
	}
	for in, want := range cases {
		if got := Classify(Normalize(in)); got != want {
			t.Fatalf("Classify(%q)=%s, want %s", in, got, want)
		}
	}
}

func TestTraversalCannotReachAdmin(t *testing.T) {
	got := Authorize("/profile/../admin/users", signedIn(activeProfile(auth.RoleRecruiter)))
	expectRedirect(t, got, "/unauthorized", ReasonInsufficientRole)
}

func TestRoleHomeConsistency(t *testing.T) {
	for _, role := range auth.Roles {
		home := RoleHome(role)
		if home != RoleHome(role) {
			t.Fatalf("RoleHome(%s) is not deterministic", role)
		}
		if !Allows(role, home) {
			t.Fatalf("RoleHome(%s)=%q outside allowed prefixes %v", role, home, AllowedPrefixes(role))
		}
		expectAllow(t, Authorize(home, signedIn(activeProfile(role))))
	}
	if RoleHome(auth.RoleUnknown) != DashboardPath {
		t.Fatalf("unknown role home=%q", RoleHome(auth.RoleUnknown))
	}
}

func TestRedirectTargetsAreStable(t *testing.T) {
	inputs := []Input{
		{},
		{SessionErr: session.KindProviderUnavailable},
		{Identity: testIdentity},
		{Identity: testIdentity, SessionErr: session.KindProfileLookupFailed},
		signedIn(profileWith(auth.RoleRecruiter, auth.StatusPending)),
		signedIn(profileWith(auth.RoleSalesManager, auth.StatusInactive)),
	}
	for _, role := range auth.Roles {
		inputs = append(inputs, signedIn(activeProfile(role)))
	}
	paths := []string{"/", "/dashboard", "/profile", "/settings", "/candidates", "/auth/login"}
	paths = append(paths, adminRoutes...)
	paths = append(paths, salesManagerRoutes...)

	for _, in := range inputs {
		for _, p := range paths {
			first := Authorize(p, in)
			if first.Kind != Redirect {
				continue
			}
			second := Authorize(first.Target, in)
			if second.Kind != Allow {
				t.Fatalf("redirect loop: %q -> %q -> %q (%s)", p, first.Location(), second.Location(), second.Reason)
			}
		}
	}
}

func TestUnauthorizedIsIdempotent(t *testing.T) {
	expectAllow(t, Authorize("/unauthorized", signedIn(activeProfile(auth.RoleRecruiter))))
}

func TestLocationEscapesValues(t *testing.T) {
	a := Action{Kind: Redirect, Target: LoginPath, Query: []Param{{"redirectTo", "/a b&c"}}}
	if got, want := a.Location(), "/auth/login?redirectTo=/a+b%26c"; got != want {
		t.Fatalf("Location()=%q, want %q", got, want)
	}
	if got := (Action{Kind: Redirect, Target: "/unauthorized"}).Location(); got != "/unauthorized" {
		t.Fatalf("Location()=%q", got)
	}
}

func TestCanonical(t *testing.T) {
	cases := map[string]string{
		"":                      "/",
		"/admin/users/42":       "/admin/users",
		"/admin/dashboard":      "/admin",
		"/dashboard/sales/q1":   "/dashboard/sales",
		"/dashboard/recruiter":  "/dashboard",
		"/auth/reset-password":  "/auth/reset-password",
		"/some/random/path/123": "unlisted",
	}
	for in, want := range cases {
		if got := Canonical(in); got != want {
			t.Fatalf("Canonical(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestDenied(t *testing.T) {
	if Authorize("/dashboard", signedIn(activeProfile(auth.RoleAdmin))).Denied() {
		t.Fatal("canonicalize redirect is not a denial")
	}
	if !Authorize("/admin", Input{}).Denied() {
		t.Fatal("unauthenticated redirect is a denial")
	}
}
