package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"agentdesk.io/internal/auth"
)

const (
	DefaultAccessCookie  = "sb-access-token"
	DefaultRefreshCookie = "sb-refresh-token"

	refreshCookieMaxAge = 60 * 60 * 24 * 30
)

// GoTrueConfig points the provider at a GoTrue (Supabase auth) server.
type GoTrueConfig struct {
	URL           string
	AnonKey       string
	JWTSecret     string
	AccessCookie  string
	RefreshCookie string
	CookieDomain  string
	SecureCookies bool
	Timeout       time.Duration
}

// GoTrueProvider resolves sessions from GoTrue access and refresh token cookies.
type GoTrueProvider struct {
	cfg    GoTrueConfig
	client *http.Client
	now    func() time.Time
}

// GoTrueOption customises a GoTrueProvider.
type GoTrueOption func(*GoTrueProvider)

// WithHTTPClient replaces the HTTP client used to call GoTrue.
func WithHTTPClient(c *http.Client) GoTrueOption {
	return func(p *GoTrueProvider) { p.client = c }
}

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) GoTrueOption {
	return func(p *GoTrueProvider) { p.now = now }
}

func NewGoTrueProvider(cfg GoTrueConfig, opts ...GoTrueOption) *GoTrueProvider {
	if cfg.AccessCookie == "" {
		cfg.AccessCookie = DefaultAccessCookie
	}
	if cfg.RefreshCookie == "" {
		cfg.RefreshCookie = DefaultRefreshCookie
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	p := &GoTrueProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GoTrueProvider) CookieNames() []string {
	return []string{p.cfg.AccessCookie, p.cfg.RefreshCookie}
}

type goTrueClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type goTrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type goTrueTokens struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         goTrueUser `json:"user"`
}

var errTokenRejected = errors.New("session: token rejected")

func (p *GoTrueProvider) Session(ctx context.Context, cookies []*http.Cookie) (*ProviderSession, error) {
	access := cookieValue(cookies, p.cfg.AccessCookie)
	refresh := cookieValue(cookies, p.cfg.RefreshCookie)
	if access == "" && refresh == "" {
		return nil, nil
	}

	if access != "" {
		identity, err := p.verify(ctx, access)
		switch {
		case err == nil:
			return &ProviderSession{Identity: identity}, nil
		case !errors.Is(err, errTokenRejected):
			return nil, err
		}
	}
	if refresh == "" {
		return &ProviderSession{SetCookies: p.clearCookies()}, nil
	}
	return p.refresh(ctx, refresh)
}

// verify checks the access token locally when a JWT secret is configured and asks
// GoTrue otherwise. Expired or invalid tokens yield errTokenRejected.
func (p *GoTrueProvider) verify(ctx context.Context, access string) (*auth.Identity, error) {
	if p.cfg.JWTSecret == "" {
		return p.user(ctx, access)
	}
	claims := &goTrueClaims{}
	_, err := jwt.ParseWithClaims(access, claims, func(*jwt.Token) (any, error) {
		return []byte(p.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTokenRejected, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", errTokenRejected)
	}
	return &auth.Identity{UserID: claims.Subject, Email: claims.Email, SessionID: claims.SessionID}, nil
}

func (p *GoTrueProvider) user(ctx context.Context, access string) (*auth.Identity, error) {
	req, err := p.newRequest(ctx, http.MethodGet, "/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+access)

	var u goTrueUser
	if err := p.do(req, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: empty user", errTokenRejected)
	}
	return &auth.Identity{UserID: u.ID, Email: u.Email}, nil
}

func (p *GoTrueProvider) refresh(ctx context.Context, refresh string) (*ProviderSession, error) {
	body, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	req, err := p.newRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var tokens goTrueTokens
	if err := p.do(req, &tokens); err != nil {
		if errors.Is(err, errTokenRejected) {
			return &ProviderSession{SetCookies: p.clearCookies()}, nil
		}
		return nil, err
	}
	if tokens.User.ID == "" || tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh response without user", ErrProviderUnavailable)
	}

	return &ProviderSession{
		Identity:   &auth.Identity{UserID: tokens.User.ID, Email: tokens.User.Email},
		SetCookies: p.tokenCookies(tokens),
	}, nil
}

// SignOut revokes the refresh tokens of the session behind the access token.
func (p *GoTrueProvider) SignOut(ctx context.Context, cookies []*http.Cookie) error {
	access := cookieValue(cookies, p.cfg.AccessCookie)
	if access == "" {
		return ErrNoSession
	}
	req, err := p.newRequest(ctx, http.MethodPost, "/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+access)
	if err := p.do(req, nil); err != nil {
		if errors.Is(err, errTokenRejected) {
			return ErrNoSession
		}
		return err
	}
	return nil
}

func (p *GoTrueProvider) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.URL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if p.cfg.AnonKey != "" {
		req.Header.Set("apikey", p.cfg.AnonKey)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do maps 4xx auth answers to errTokenRejected and everything else that is not 2xx to
// ErrProviderUnavailable.
func (p *GoTrueProvider) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: gotrue returned status %d", errTokenRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: gotrue returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrProviderUnavailable, err)
	}
	return nil
}

func (p *GoTrueProvider) tokenCookies(t goTrueTokens) []*http.Cookie {
	accessAge := t.ExpiresIn
	if accessAge <= 0 {
		accessAge = 3600
	}
	return []*http.Cookie{
		p.cookie(p.cfg.AccessCookie, t.AccessToken, accessAge),
		p.cookie(p.cfg.RefreshCookie, t.RefreshToken, refreshCookieMaxAge),
	}
}

func (p *GoTrueProvider) clearCookies() []*http.Cookie {
	return []*http.Cookie{
		p.cookie(p.cfg.AccessCookie, "", -1),
		p.cookie(p.cfg.RefreshCookie, "", -1),
	}
}

func (p *GoTrueProvider) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   p.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
