// Package session resolves request cookies into the visitor's identity and workspace profile.
package session

import (
	"context"
	"errors"
	"net/http"

	"agentdesk.io/internal/auth"
)

// ErrorKind classifies why a resolution is incomplete. The zero value means no error.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindProfileLookupFailed ErrorKind = "profile_lookup_failed"
)

var (
	// ErrProviderUnavailable wraps transport and service failures of an identity provider.
	ErrProviderUnavailable = errors.New("session: provider unavailable")
	// ErrNoSession is returned by SignOut when there is nothing to revoke.
	ErrNoSession = errors.New("session: no session")
)

// Result is the immutable per-request outcome of Resolve.
type Result struct {
	Identity *auth.Identity
	Profile  *auth.Profile
	Err      ErrorKind
	// SetCookies carries refreshed or cleared provider cookies to relay to the browser.
	SetCookies []*http.Cookie
}

// Authenticated reports whether the provider recognised a session.
func (r Result) Authenticated() bool { return r.Identity != nil }

// ProviderSession is what a provider knows about the request. A nil Identity means no session.
type ProviderSession struct {
	Identity   *auth.Identity
	SetCookies []*http.Cookie
}

// Provider is an external identity provider.
type Provider interface {
	// Session returns (nil, nil) or a session with nil Identity when the visitor is anonymous,
	// and an error wrapping ErrProviderUnavailable when the provider cannot answer.
	Session(ctx context.Context, cookies []*http.Cookie) (*ProviderSession, error)
	SignOut(ctx context.Context, cookies []*http.Cookie) error
	// CookieNames lists the cookies the provider owns, cleared on sign-out.
	CookieNames() []string
}

// ProfileStore loads workspace profiles. Implementations return auth.ErrNotFound for zero rows
// and auth.ErrMultipleProfiles when the user id is not unique.
type ProfileStore interface {
	ProfileByUserID(ctx context.Context, userID string) (*auth.Profile, error)
}

// ClearCookies returns expired copies of the named cookies.
func ClearCookies(names []string, secure bool) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return out
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c != nil && c.Name == name {
			return c.Value
		}
	}
	return ""
}
