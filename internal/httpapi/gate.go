package httpapi

import (
	"net/http"

	"agentdesk.io/internal/activity"
	"agentdesk.io/internal/auth"
	"agentdesk.io/internal/obs"
	"agentdesk.io/internal/route"
	"agentdesk.io/internal/session"
)

// Gate resolves the visitor, applies the route decision and either redirects or proxies.
func (a *API) Gate(w http.ResponseWriter, r *http.Request) {
	pathname := route.Normalize(r.URL.Path)
	if Bypass(pathname) {
		a.proxy.ServeHTTP(w, r)
		return
	}

	ctx := r.Context()
	res := a.resolver.Resolve(ctx, r.Cookies())
	if ctx.Err() != nil {
		// The client went away; nothing is answered and nothing is recorded.
		return
	}
	action := route.Authorize(pathname, route.Input{
		Identity:   res.Identity,
		Profile:    res.Profile,
		SessionErr: res.Err,
	})
	obs.RecordDecision(action.Kind.String(), string(action.Reason))

	for _, c := range res.SetCookies {
		http.SetCookie(w, c)
	}

	ctx = auth.ContextWithSession(ctx, res.Identity, res.Profile)
	if res.Err == session.KindProviderUnavailable {
		a.activity.Record(ctx, activity.Event{
			Action:     activity.ActionProviderUnavailable,
			Resource:   "route",
			ResourceID: pathname,
		})
	}

	if action.Kind == route.Redirect {
		if action.Denied() {
			a.activity.Record(ctx, deniedEvent(pathname, action, res.Profile))
		}
		obs.Ctx(ctx).Debug().
			Str("path", pathname).
			Str("reason", string(action.Reason)).
			Str("location", action.Location()).
			Msg("gate_redirect")
		http.Redirect(w, r, action.Location(), http.StatusTemporaryRedirect)
		return
	}

	a.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func deniedEvent(pathname string, action route.Action, profile *auth.Profile) activity.Event {
	meta := map[string]any{
		"reason": string(action.Reason),
		"target": action.Target,
		"scope":  route.Classify(pathname).String(),
	}
	if profile != nil {
		meta["role"] = profile.Role.String()
		meta["role_level"] = profile.Role.Level()
		meta["status"] = profile.Status.String()
	}
	return activity.Event{
		Action:     activity.ActionAccessDenied,
		Resource:   "route",
		ResourceID: pathname,
		Metadata:   meta,
	}
}
