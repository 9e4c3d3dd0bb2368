package httpapi

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"agentdesk.io/internal/auth"
	"agentdesk.io/internal/obs"
)

// Headers stamped on upstream requests and on responses. Client-supplied values are dropped.
const (
	HeaderUserID     = "X-User-Id"
	HeaderUserRole   = "X-User-Role"
	HeaderUserStatus = "X-User-Status"
)

var identityHeaders = []string{HeaderUserID, HeaderUserRole, HeaderUserStatus}

func newProxy(upstream *url.URL) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
			stripIdentity(pr.Out.Header)
			stampIdentity(pr.Out.Header, pr.In)
		},
		ModifyResponse: func(resp *http.Response) error {
			stripIdentity(resp.Header)
			if resp.Request != nil {
				stampIdentity(resp.Header, resp.Request)
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			obs.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("upstream_error")
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":      "upstream unavailable",
				"request_id": obs.RequestIDFromContext(r.Context()),
			})
		},
	}
}

func stripIdentity(h http.Header) {
	for _, name := range identityHeaders {
		h.Del(name)
	}
}

// stampIdentity copies the session attached to r's context into h.
func stampIdentity(h http.Header, r *http.Request) {
	ctx := r.Context()
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return
	}
	h.Set(HeaderUserID, id.UserID)
	if p, ok := auth.ProfileFromContext(ctx); ok {
		h.Set(HeaderUserRole, p.Role.String())
		h.Set(HeaderUserStatus, p.Status.String())
	}
}
