// Package httpapi is the HTTP edge in front of the workspace app: it resolves the session,
// applies the route decision and proxies allowed requests upstream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"agentdesk.io/internal/activity"
	"agentdesk.io/internal/obs"
	"agentdesk.io/internal/route"
	"agentdesk.io/internal/session"
)

// SessionResolver resolves request cookies. *session.Resolver implements it.
type SessionResolver interface {
	Resolve(ctx context.Context, cookies []*http.Cookie) session.Result
}

// ActivityRecorder accepts activity events without blocking. *activity.Recorder implements it.
type ActivityRecorder interface {
	Record(ctx context.Context, e activity.Event)
}

// Pinger is satisfied by the profile store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerState reports the identity provider breaker. *session.BreakerProvider implements it.
type BreakerState interface {
	State() string
}

// ReadyProbe gates readiness on the database alone. Public routes keep working while the
// identity provider is down, so the breaker is reported next to the check, never as one.
type ReadyProbe struct {
	DB       Pinger
	Provider BreakerState
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	if err := rp.DB.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// Options wires the edge.
type Options struct {
	Resolver SessionResolver
	Provider session.Provider
	Activity ActivityRecorder
	Upstream *url.URL
	Ready    ReadyProbe
	Version  string

	SecureCookies      bool
	RateLimitBurst     int
	RateLimitPerSecond int
	MaxBodyBytes       int64

	// TrustedProxies are CIDR blocks whose X-Forwarded-For is believed.
	TrustedProxies []string
}

// API is the HTTP layer.
type API struct {
	router   chi.Router
	admin    chi.Router
	opts     Options
	resolver SessionResolver
	provider session.Provider
	activity ActivityRecorder
	proxy    http.Handler
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, activity.Event) {}

// New validates opts and builds the router.
func New(opts Options) (*API, error) {
	if opts.Resolver == nil {
		return nil, errors.New("httpapi: resolver is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("httpapi: provider is required")
	}
	if opts.Upstream == nil || opts.Upstream.Host == "" {
		return nil, errors.New("httpapi: upstream url is required")
	}
	trusted, err := ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	a := &API{
		opts:     opts,
		resolver: opts.Resolver,
		provider: opts.Provider,
		activity: opts.Activity,
		proxy:    newProxy(opts.Upstream),
	}
	if a.activity == nil {
		a.activity = noopRecorder{}
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return ClientIP(next, trusted)
	})
	r.Use(LoggingJSON, SecurityHeaders)
	r.Use(func(next http.Handler) http.Handler {
		return RateLimit(next, opts.RateLimitBurst, opts.RateLimitPerSecond)
	})
	r.Use(func(next http.Handler) http.Handler {
		return MaxBodyBytes(next, opts.MaxBodyBytes)
	})

	r.Post(signOutPath, a.SignOut)
	r.Get(signOutPath, signOutMethodNotAllowed)
	r.Handle("/*", http.HandlerFunc(a.Gate))
	a.router = r

	admin := chi.NewRouter()
	admin.Use(RequestID)
	admin.Get("/healthz", a.Healthz)
	admin.Get("/readyz", a.Ready)
	admin.Method(http.MethodGet, "/metrics", obs.Handler())
	a.admin = admin

	return a, nil
}

// Handler returns the instrumented public router. Every path it does not own goes to the gate.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router, metricsPath)
}

// AdminHandler serves health, readiness and metrics for the private admin listener.
func (a *API) AdminHandler() http.Handler {
	return a.admin
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "agentdesk-edge",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ready"}
	if a.opts.Ready.Provider != nil {
		body["provider_breaker"] = a.opts.Ready.Provider.State()
	}
	code := http.StatusOK
	if err := a.opts.Ready.Check(r.Context()); err != nil {
		code = http.StatusServiceUnavailable
		body["status"] = "not_ready"
		body["error"] = err.Error()
	}
	writeJSON(w, code, body)
}

// metricsPath keeps the path label bounded: sign-out by name, bypassed traffic by class,
// everything else by route table entry.
func metricsPath(p string) string {
	if p == signOutPath {
		return p
	}
	if Bypass(route.Normalize(p)) {
		return "bypass"
	}
	return route.Canonical(p)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
