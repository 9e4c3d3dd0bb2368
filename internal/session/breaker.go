package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"agentdesk.io/internal/obs"
)

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	Name string
	// FailureThreshold consecutive provider failures open the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a probe request.
	OpenTimeout time.Duration
	// Interval resets failure counts while closed. Zero never resets.
	Interval time.Duration
}

// BreakerProvider decorates a Provider so a failing provider is not called on every request.
// Calls rejected by an open circuit fail with ErrProviderUnavailable.
type BreakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[*ProviderSession]
	name string
}

// NewBreakerProvider wraps next with a circuit breaker.
func NewBreakerProvider(next Provider, cfg BreakerConfig) *BreakerProvider {
	if cfg.Name == "" {
		cfg.Name = "identity-provider"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	obs.SetBreakerState(cfg.Name, 0)

	threshold := cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[*ProviderSession](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only provider outages count; anonymous visitors and abandoned calls do not.
		IsSuccessful: func(err error) bool {
			var ab *abandonedError
			if errors.As(err, &ab) {
				return true
			}
			return err == nil || !errors.Is(err, ErrProviderUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			obs.SetBreakerState(name, stateValue(to))
			obs.Logger().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider_breaker_state")
		},
	})
	return &BreakerProvider{next: next, cb: cb, name: cfg.Name}
}

func (b *BreakerProvider) Session(ctx context.Context, cookies []*http.Cookie) (*ProviderSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	ps, err := b.cb.Execute(func() (*ProviderSession, error) {
		ps, err := b.next.Session(ctx, cookies)
		return ps, abandoned(ctx, err)
	})
	return ps, b.mapErr(err)
}

func (b *BreakerProvider) SignOut(ctx context.Context, cookies []*http.Cookie) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	_, err := b.cb.Execute(func() (*ProviderSession, error) {
		return nil, abandoned(ctx, b.next.SignOut(ctx, cookies))
	})
	return b.mapErr(err)
}

func (b *BreakerProvider) CookieNames() []string { return b.next.CookieNames() }

// State is the breaker state name: closed, half-open or open.
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}

func (b *BreakerProvider) mapErr(err error) error {
	var ab *abandonedError
	if errors.As(err, &ab) {
		return ab.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, b.name, err)
	}
	return err
}

// abandonedError marks a call whose caller went away before the provider answered.
// A resolver timeout is a deadline, not a cancellation, and still counts against the provider.
type abandonedError struct{ err error }

func (e *abandonedError) Error() string { return e.err.Error() }
func (e *abandonedError) Unwrap() error { return e.err }

func abandoned(ctx context.Context, err error) error {
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return &abandonedError{err: err}
	}
	return err
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
