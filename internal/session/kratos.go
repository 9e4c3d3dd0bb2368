package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	kratos "github.com/ory/kratos-client-go"

	"agentdesk.io/internal/auth"
)

// DefaultKratosCookie is the session cookie Kratos issues to browsers.
const DefaultKratosCookie = "ory_kratos_session"

// KratosConfig points the provider at the Kratos public API.
type KratosConfig struct {
	PublicURL  string
	CookieName string
	Timeout    time.Duration
}

// KratosProvider resolves sessions through Ory Kratos.
type KratosProvider struct {
	client     *kratos.APIClient
	cookieName string
	timeout    time.Duration
}

// NewKratosProvider creates a provider with a tuned HTTP transport.
func NewKratosProvider(cfg KratosConfig) *KratosProvider {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultKratosCookie
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{{URL: strings.TrimRight(cfg.PublicURL, "/")}}
	configuration.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
		// Logout answers with a browser redirect; the status is all we need.
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	return &KratosProvider{
		client:     kratos.NewAPIClient(configuration),
		cookieName: cfg.CookieName,
		timeout:    cfg.Timeout,
	}
}

func (p *KratosProvider) CookieNames() []string { return []string{p.cookieName} }

func (p *KratosProvider) Session(ctx context.Context, cookies []*http.Cookie) (*ProviderSession, error) {
	if cookieValue(cookies, p.cookieName) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sess, resp, err := p.client.FrontendAPI.ToSession(ctx).Cookie(cookieHeader(cookies)).Execute()
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: kratos returned status %d", ErrProviderUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	if sess.Active != nil && !*sess.Active {
		return nil, nil
	}
	if sess.Identity == nil {
		return nil, nil
	}

	email := ""
	if traits, ok := sess.Identity.Traits.(map[string]interface{}); ok {
		if v, ok := traits["email"].(string); ok {
			email = v
		}
	}

	return &ProviderSession{Identity: &auth.Identity{
		UserID:    sess.Identity.Id,
		Email:     email,
		SessionID: sess.Id,
	}}, nil
}

// SignOut revokes the browser session with a logout flow.
func (p *KratosProvider) SignOut(ctx context.Context, cookies []*http.Cookie) error {
	if cookieValue(cookies, p.cookieName) == "" {
		return ErrNoSession
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	flow, resp, err := p.client.FrontendAPI.CreateBrowserLogoutFlow(ctx).Cookie(cookieHeader(cookies)).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrNoSession
		}
		return fmt.Errorf("%w: create logout flow: %w", ErrProviderUnavailable, err)
	}

	// A 303 to return_to surfaces as an error from the generated client; only the status matters.
	resp, err = p.client.FrontendAPI.UpdateLogoutFlow(ctx).Token(flow.LogoutToken).Execute()
	if resp == nil {
		return fmt.Errorf("%w: submit logout flow: %w", ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: submit logout flow: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}

func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c != nil {
			parts = append(parts, c.Name+"="+c.Value)
		}
	}
	return strings.Join(parts, "; ")
}
