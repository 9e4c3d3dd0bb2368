package auth

import "context"

type identityContextKey struct{}
type profileContextKey struct{}

// ContextWithSession attaches the resolved identity and profile to the context.
// Either value may be nil.
func ContextWithSession(ctx context.Context, identity *Identity, profile *Profile) context.Context {
	if identity != nil {
		id := *identity
		ctx = context.WithValue(ctx, identityContextKey{}, &id)
	}
	if profile != nil {
		p := *profile
		ctx = context.WithValue(ctx, profileContextKey{}, &p)
	}
	return ctx
}

// IdentityFromContext returns a copy of the identity previously attached to the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}

// ProfileFromContext returns a copy of the profile previously attached to the context.
func ProfileFromContext(ctx context.Context) (Profile, bool) {
	if ctx == nil {
		return Profile{}, false
	}
	v, ok := ctx.Value(profileContextKey{}).(*Profile)
	if !ok || v == nil {
		return Profile{}, false
	}
	return *v, true
}

// UserIDFromContext extracts the authenticated user id from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}

// HasRole checks whether the profile in context holds role.
func HasRole(ctx context.Context, role Role) bool {
	p, ok := ProfileFromContext(ctx)
	return ok && p.Role == role
}
