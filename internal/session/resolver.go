package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"agentdesk.io/internal/auth"
	"agentdesk.io/internal/obs"
)

// Resolver turns request cookies into a Result. It holds no per-request state.
type Resolver struct {
	provider Provider
	profiles ProfileStore
	timeout  time.Duration
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithTimeout bounds the provider and profile round trips of one resolution.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// NewResolver builds a resolver over provider and profiles.
func NewResolver(provider Provider, profiles ProfileStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{provider: provider, profiles: profiles}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails: provider and store errors are folded into Result.Err.
func (r *Resolver) Resolve(ctx context.Context, cookies []*http.Cookie) (res Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			obs.Ctx(ctx).Error().Interface("panic", p).Msg("session_resolve_panic")
			if res.Identity == nil {
				res.Err = KindProviderUnavailable
			} else {
				res.Profile = nil
				res.Err = KindProfileLookupFailed
			}
		}
		obs.ObserveSessionResolve(outcome(res), time.Since(start))
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ps, err := r.provider.Session(ctx, cookies)
	if err != nil {
		obs.Ctx(ctx).Warn().Err(err).Msg("session_provider_failed")
		return Result{Err: KindProviderUnavailable}
	}
	if ps == nil {
		return Result{}
	}
	res.SetCookies = ps.SetCookies
	if ps.Identity == nil {
		return res
	}
	identity := *ps.Identity
	res.Identity = &identity

	profile, err := r.profiles.ProfileByUserID(ctx, identity.UserID)
	switch {
	case err == nil:
		res.Profile = profile
	case errors.Is(err, auth.ErrNotFound):
	default:
		obs.Ctx(ctx).Warn().Err(err).Str("user_id", identity.UserID).Msg("profile_lookup_failed")
		res.Err = KindProfileLookupFailed
	}
	return res
}

func outcome(res Result) string {
	switch {
	case res.Err != KindNone:
		return string(res.Err)
	case res.Identity == nil:
		return "anonymous"
	case res.Profile == nil:
		return "profile_missing"
	default:
		return "authenticated"
	}
}
