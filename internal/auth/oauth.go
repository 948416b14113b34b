package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Purpose distinguishes the interactive login flow from read-only
// repository linking; the two use different scope sets per provider.
type Purpose string

const (
	PurposeLogin       Purpose = "login"
	PurposeRepoConnect Purpose = "repo-connect"
)

// Provider names.
const (
	ProviderGitHub    = "github"
	ProviderGoogle    = "google"
	ProviderGitLab    = "gitlab"
	ProviderBitbucket = "bitbucket"
)

// ProviderConfig is the static per-provider configuration.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	// EmailURL is a secondary endpoint for providers that do not return a
	// primary email from UserInfoURL.
	EmailURL string
	// BasicAuth sends client credentials as HTTP Basic auth on the token
	// exchange instead of posting the secret in the form body.
	BasicAuth bool
	Scopes    map[Purpose][]string
}

// GitHubProvider builds the github provider configuration.
func GitHubProvider(clientID, clientSecret, redirectURI string) ProviderConfig {
	return ProviderConfig{
		Name:         ProviderGitHub,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		AuthURL:      "https://github.com/login/oauth/authorize",
		TokenURL:     "https://github.com/login/oauth/access_token",
		UserInfoURL:  "https://api.github.com/user",
		EmailURL:     "https://api.github.com/user/emails",
		Scopes: map[Purpose][]string{
			PurposeLogin:       {"user:email"},
			PurposeRepoConnect: {"repo"},
		},
	}
}

// GoogleProvider builds the google provider configuration. Google is
// identity-only; it has no repo-connect scopes.
func GoogleProvider(clientID, clientSecret, redirectURI string) ProviderConfig {
	return ProviderConfig{
		Name:         ProviderGoogle,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		UserInfoURL:  "https://www.googleapis.com/oauth2/v2/userinfo",
		Scopes: map[Purpose][]string{
			PurposeLogin: {"openid", "email", "profile"},
		},
	}
}

// GitLabProvider builds the gitlab provider configuration.
func GitLabProvider(clientID, clientSecret, redirectURI string) ProviderConfig {
	return ProviderConfig{
		Name:         ProviderGitLab,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		AuthURL:      "https://gitlab.com/oauth/authorize",
		TokenURL:     "https://gitlab.com/oauth/token",
		UserInfoURL:  "https://gitlab.com/api/v4/user",
		Scopes: map[Purpose][]string{
			PurposeLogin:       {"read_user"},
			PurposeRepoConnect: {"read_api", "read_repository"},
		},
	}
}

// BitbucketProvider builds the bitbucket provider configuration. Bitbucket
// requires HTTP Basic client authentication on the token exchange.
func BitbucketProvider(clientID, clientSecret, redirectURI string) ProviderConfig {
	return ProviderConfig{
		Name:         ProviderBitbucket,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		AuthURL:      "https://bitbucket.org/site/oauth2/authorize",
		TokenURL:     "https://bitbucket.org/site/oauth2/access_token",
		UserInfoURL:  "https://api.bitbucket.org/2.0/user",
		EmailURL:     "https://api.bitbucket.org/2.0/user/emails",
		BasicAuth:    true,
		Scopes: map[Purpose][]string{
			PurposeLogin:       {"account", "email"},
			PurposeRepoConnect: {"repository"},
		},
	}
}

// OAuthToken is the normalized result of a code exchange.
type OAuthToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Identity is the normalized provider user info.
type Identity struct {
	Email string
	Name  string
}

// FederationManager holds the immutable provider registry built once at
// startup and performs the provider-specific OAuth plumbing.
type FederationManager struct {
	providers map[string]ProviderConfig
	client    *http.Client
	now       func() time.Time
}

// FederationOption configures FederationManager.
type FederationOption func(*FederationManager)

// WithHTTPClient overrides the HTTP client (useful for tests).
func WithHTTPClient(client *http.Client) FederationOption {
	return func(m *FederationManager) {
		if client != nil {
			m.client = client
		}
	}
}

// WithFederationClock overrides the time source.
func WithFederationClock(fn func() time.Time) FederationOption {
	return func(m *FederationManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewFederationManager constructs a FederationManager. Providers without a
// client id are skipped; the registry is copied and never mutated after
// construction.
func NewFederationManager(providers []ProviderConfig, opts ...FederationOption) *FederationManager {
	m := &FederationManager{
		providers: make(map[string]ProviderConfig, len(providers)),
		client:    &http.Client{Timeout: 15 * time.Second},
		now:       time.Now,
	}
	for _, p := range providers {
		if strings.TrimSpace(p.ClientID) == "" {
			continue
		}
		m.providers[p.Name] = p
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Providers lists the configured provider names, sorted.
func (m *FederationManager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supports reports whether a provider is configured for the given purpose.
func (m *FederationManager) Supports(provider string, purpose Purpose) bool {
	p, ok := m.providers[provider]
	if !ok {
		return false
	}
	_, ok = p.Scopes[purpose]
	return ok
}

// AuthorizeURL returns the provider redirect target with scopes selected by
// purpose and the CSRF state attached.
func (m *FederationManager) AuthorizeURL(provider string, purpose Purpose, state string) (string, error) {
	p, ok := m.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}
	scopes, ok := p.Scopes[purpose]
	if !ok {
		return "", fmt.Errorf("%w: %s does not support %s", ErrProviderNotConfigured, provider, purpose)
	}
	params := url.Values{}
	params.Set("client_id", p.ClientID)
	params.Set("redirect_uri", p.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(scopes, " "))
	if state != "" {
		params.Set("state", state)
	}
	return p.AuthURL + "?" + params.Encode(), nil
}

// Exchange trades an authorization code for a provider access token.
func (m *FederationManager) Exchange(ctx context.Context, provider, code string) (OAuthToken, error) {
	p, ok := m.providers[provider]
	if !ok {
		return OAuthToken{}, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}
	form := url.Values{}
	form.Set("client_id", p.ClientID)
	form.Set("code", code)
	form.Set("redirect_uri", p.RedirectURI)
	form.Set("grant_type", "authorization_code")
	if !p.BasicAuth {
		form.Set("client_secret", p.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return OAuthToken{}, fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if p.BasicAuth {
		req.SetBasicAuth(p.ClientID, p.ClientSecret)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return OAuthToken{}, fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OAuthToken{}, fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return OAuthToken{}, fmt.Errorf("%w: %s returned %d", ErrProviderExchangeFailed, provider, resp.StatusCode)
	}
	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return OAuthToken{}, fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	if payload.AccessToken == "" {
		return OAuthToken{}, fmt.Errorf("%w: %s returned no access token", ErrProviderExchangeFailed, provider)
	}
	token := OAuthToken{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}
	if payload.ExpiresIn > 0 {
		token.ExpiresAt = m.now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token, nil
}

// FetchIdentity normalizes heterogeneous provider user-info responses into
// one shape. Providers that omit the email from the profile get a secondary
// email-list call; an identity without a resolvable email is an error, never
// a synthesized placeholder.
func (m *FederationManager) FetchIdentity(ctx context.Context, provider, accessToken string) (Identity, error) {
	p, ok := m.providers[provider]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}
	var profile struct {
		Email       string `json:"email"`
		Name        string `json:"name"`
		Login       string `json:"login"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}
	if err := m.getJSON(ctx, p.UserInfoURL, accessToken, &profile); err != nil {
		return Identity{}, err
	}
	identity := Identity{Email: profile.Email, Name: profile.Name}
	if identity.Name == "" {
		switch {
		case profile.DisplayName != "":
			identity.Name = profile.DisplayName
		case profile.Login != "":
			identity.Name = profile.Login
		case profile.Username != "":
			identity.Name = profile.Username
		}
	}
	if identity.Email == "" && p.EmailURL != "" {
		email, err := m.fetchPrimaryEmail(ctx, p, accessToken)
		if err != nil {
			return Identity{}, err
		}
		identity.Email = email
	}
	if identity.Email == "" {
		return Identity{}, fmt.Errorf("%w: %s", ErrProviderNoEmail, provider)
	}
	return identity, nil
}

func (m *FederationManager) fetchPrimaryEmail(ctx context.Context, p ProviderConfig, accessToken string) (string, error) {
	var entries []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := m.getJSON(ctx, p.EmailURL, accessToken, &entries); err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Primary && e.Email != "" {
			return e.Email, nil
		}
	}
	for _, e := range entries {
		if e.Verified && e.Email != "" {
			return e.Email, nil
		}
	}
	return "", nil
}

func (m *FederationManager) getJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: user info returned %d", ErrProviderExchangeFailed, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	return nil
}
