package httpapi

import (
	"errors"
	"net/http"

	"agentdesk.io/internal/activity"
	"agentdesk.io/internal/auth"
	"agentdesk.io/internal/obs"
	"agentdesk.io/internal/route"
	"agentdesk.io/internal/session"
)

const signOutPath = "/auth/signout"

// signOutMethodNotAllowed refuses GET so a cross-site link or image cannot end a session.
func signOutMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error":      "sign-out requires POST",
		"request_id": obs.RequestIDFromContext(r.Context()),
	})
}

// SignOut revokes the provider session, clears its cookies and sends the visitor to the login page.
// Cookies are cleared even when the provider cannot be reached.
func (a *API) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cookies := r.Cookies()

	res := a.resolver.Resolve(ctx, cookies)
	ctx = auth.ContextWithSession(ctx, res.Identity, res.Profile)

	revoked := true
	if err := a.provider.SignOut(ctx, cookies); err != nil {
		revoked = false
		if !errors.Is(err, session.ErrNoSession) {
			obs.Ctx(ctx).Warn().Err(err).Msg("sign_out_provider_failed")
		}
	}

	for _, c := range session.ClearCookies(a.provider.CookieNames(), a.opts.SecureCookies) {
		http.SetCookie(w, c)
	}

	if res.Identity != nil {
		a.activity.Record(ctx, activity.Event{
			Action:     activity.ActionSignOut,
			Resource:   "session",
			ResourceID: res.Identity.SessionID,
			Metadata:   map[string]any{"revoked": revoked},
		})
	}
	http.Redirect(w, r, route.LoginPath, http.StatusSeeOther)
}
