package auth

import (
	"context"
	"testing"
	"time"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatal("expected no user in empty context")
	}

	identity := &Identity{UserID: "user-7", Email: "u7@example.com"}
	profile := &Profile{UserID: "user-7", Role: RoleSalesManager, Status: StatusActive}
	ctx = ContextWithSession(ctx, identity, profile)

	// mutating the originals must not leak into the context copies
	identity.UserID = "changed"
	profile.Role = RoleAdmin

	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	if !HasRole(ctx, RoleSalesManager) {
		t.Fatalf("HasRole missing expected role")
	}
	if HasRole(ctx, RoleAdmin) {
		t.Fatalf("unexpected role found")
	}
}

func TestContextWithSessionIdentityOnly(t *testing.T) {
	ctx := ContextWithSession(context.Background(), &Identity{UserID: "u1"}, nil)
	if _, ok := IdentityFromContext(ctx); !ok {
		t.Fatal("expected identity")
	}
	if _, ok := ProfileFromContext(ctx); ok {
		t.Fatal("expected no profile")
	}
}

func TestParseRoleAndStatus(t *testing.T) {
	roles := map[string]Role{
		"admin":          RoleAdmin,
		" Sales_Manager": RoleSalesManager,
		"RECRUITER":      RoleRecruiter,
		"owner":          RoleUnknown,
		"":               RoleUnknown,
	}
	for in, want := range roles {
		if got := ParseRole(in); got != want {
			t.Fatalf("ParseRole(%q)=%q, want %q", in, got, want)
		}
	}
	statuses := map[string]Status{
		"active":   StatusActive,
		"Inactive": StatusInactive,
		"pending":  StatusPending,
		"invited":  StatusInvited,
		"banned":   StatusUnknown,
	}
	for in, want := range statuses {
		if got := ParseStatus(in); got != want {
			t.Fatalf("ParseStatus(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestProfileActiveAndDisplayName(t *testing.T) {
	var nilProfile *Profile
	if nilProfile.Active() {
		t.Fatal("nil profile must not be active")
	}
	p := &Profile{Email: "ada@example.com", Status: StatusPending}
	if p.Active() {
		t.Fatal("pending profile must not be active")
	}
	if p.DisplayName() != "ada@example.com" {
		t.Fatalf("unexpected display name %q", p.DisplayName())
	}
	p.FirstName, p.LastName = "Ada", "Lovelace"
	if p.DisplayName() != "Ada Lovelace" {
		t.Fatalf("unexpected display name %q", p.DisplayName())
	}
}

func TestInvitationExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inv := Invitation{Status: InvitationPending, ExpiresAt: now.Add(InvitationTTL)}
	if inv.Expired(now) {
		t.Fatal("fresh invitation reported expired")
	}
	if !inv.Expired(now.Add(InvitationTTL + time.Second)) {
		t.Fatal("invitation past ttl not expired")
	}
	inv.Status = InvitationAccepted
	if inv.Expired(now.Add(30 * 24 * time.Hour)) {
		t.Fatal("accepted invitation must not report expired")
	}
}
