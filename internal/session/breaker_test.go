package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestBreakerOpensOnProviderFailures(t *testing.T) {
	calls := 0
	provider := &stubProvider{sessionFn: func(context.Context, []*http.Cookie) (*ProviderSession, error) {
		calls++
		return nil, fmt.Errorf("%w: 503", ErrProviderUnavailable)
	}}
	b := NewBreakerProvider(provider, BreakerConfig{Name: "test-open", FailureThreshold: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		if _, err := b.Session(context.Background(), nil); !errors.Is(err, ErrProviderUnavailable) {
			t.Fatalf("call %d: expected provider unavailable, got %v", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("breaker should be open, state %s", b.State())
	}

	_, err := b.Session(context.Background(), nil)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("open breaker must report provider unavailable, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("open breaker must not call the provider, calls=%d", calls)
	}
}

func TestBreakerIgnoresAnonymousAndSignOutMisses(t *testing.T) {
	provider := &stubProvider{
		sessionFn: func(context.Context, []*http.Cookie) (*ProviderSession, error) { return nil, nil },
		signOutFn: func(context.Context, []*http.Cookie) error { return ErrNoSession },
	}
	b := NewBreakerProvider(provider, BreakerConfig{Name: "test-ignore", FailureThreshold: 1})
	for i := 0; i < 3; i++ {
		if ps, err := b.Session(context.Background(), nil); ps != nil || err != nil {
			t.Fatalf("unexpected (%v, %v)", ps, err)
		}
		if err := b.SignOut(context.Background(), nil); !errors.Is(err, ErrNoSession) {
			t.Fatalf("expected ErrNoSession, got %v", err)
		}
	}
	if b.State() != "closed" {
		t.Fatalf("breaker should stay closed, state %s", b.State())
	}
	if got := b.CookieNames(); len(got) != 1 || got[0] != "stub-session" {
		t.Fatalf("unexpected cookie names %v", got)
	}
}

func TestResolverWithOpenBreaker(t *testing.T) {
	provider := &stubProvider{sessionFn: func(context.Context, []*http.Cookie) (*ProviderSession, error) {
		return nil, fmt.Errorf("%w: timeout", ErrProviderUnavailable)
	}}
	b := NewBreakerProvider(provider, BreakerConfig{Name: "test-resolver", FailureThreshold: 1, OpenTimeout: time.Minute})
	r := NewResolver(b, &stubProfiles{})
	for i := 0; i < 3; i++ {
		if res := r.Resolve(context.Background(), nil); res.Err != KindProviderUnavailable {
			t.Fatalf("call %d: expected provider_unavailable, got %q", i, res.Err)
		}
	}
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	var slow atomic.Bool
	slow.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(goTrueTokens{
			AccessToken:  "access-new",
			RefreshToken: "refresh-new",
			ExpiresIn:    3600,
			User:         goTrueUser{ID: "user-9", Email: "nine@example.com"},
		})
	}))
	defer server.Close()

	b := NewBreakerProvider(newGoTrue(server.URL), BreakerConfig{Name: "test-cancel", FailureThreshold: 3, OpenTimeout: time.Minute})
	expired := signedToken(t, "user-9", fixedNow.Add(-time.Minute), testJWTSecret)
	cookies := goTrueCookies(expired, "refresh-old")

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		if _, err := b.Session(ctx, cookies); err == nil {
			t.Fatalf("aborted call %d: expected an error", i)
		}
		cancel()
	}
	if b.State() != "closed" {
		t.Fatalf("caller aborts must not trip the breaker, state %s", b.State())
	}

	slow.Store(false)
	ps, err := b.Session(context.Background(), cookies)
	if err != nil {
		t.Fatalf("healthy provider after aborts: %v", err)
	}
	if ps == nil || ps.Identity == nil || ps.Identity.UserID != "user-9" {
		t.Fatalf("unexpected session %+v", ps)
	}
}

func TestBreakerSkipsProviderForCancelledCaller(t *testing.T) {
	calls := 0
	provider := &stubProvider{
		sessionFn: func(context.Context, []*http.Cookie) (*ProviderSession, error) {
			calls++
			return nil, nil
		},
		signOutFn: func(context.Context, []*http.Cookie) error {
			calls++
			return nil
		},
	}
	b := NewBreakerProvider(provider, BreakerConfig{Name: "test-precancel", FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Session(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := b.SignOut(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("cancelled caller must not reach the provider, calls=%d", calls)
	}
	if b.State() != "closed" {
		t.Fatalf("breaker should stay closed, state %s", b.State())
	}
}

func TestBreakerCountsResolveTimeouts(t *testing.T) {
	provider := &stubProvider{sessionFn: func(ctx context.Context, _ []*http.Cookie) (*ProviderSession, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, ctx.Err())
	}}
	b := NewBreakerProvider(provider, BreakerConfig{Name: "test-deadline", FailureThreshold: 1, OpenTimeout: time.Minute})
	r := NewResolver(b, &stubProfiles{}, WithTimeout(5*time.Millisecond))

	if res := r.Resolve(context.Background(), nil); res.Err != KindProviderUnavailable {
		t.Fatalf("expected provider_unavailable, got %q", res.Err)
	}
	if b.State() != "open" {
		t.Fatalf("a slow provider must trip the breaker, state %s", b.State())
	}
}
