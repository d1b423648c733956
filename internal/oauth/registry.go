package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"qmark.app/internal/secret"
	"qmark.app/internal/store"
)

var (
	ErrUnsupportedPlatform = errors.New("oauth: unsupported platform")
	ErrNotConfigured       = errors.New("oauth: platform is not configured")
	ErrInvalidState        = errors.New("oauth: invalid or expired state")
	ErrExchange            = errors.New("oauth: token exchange failed")
)

const (
	defaultStateTTL    = 10 * time.Minute
	stateBytes         = 32
	maxResponseBytes   = 1 << 20
	defaultHTTPTimeout = 10 * time.Second
)

// StateStore persists issued state values until the callback consumes them.
type StateStore interface {
	CreateOAuthState(ctx context.Context, st store.OAuthState) (store.OAuthState, error)
	ConsumeOAuthState(ctx context.Context, state string, now time.Time) (store.OAuthState, error)
}

// Token is the part of a provider token response the callback stores.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	// Expiry is nil when the provider gave no lifetime.
	Expiry *time.Time
}

func tokenFrom(t *oauth2.Token) Token {
	out := Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	if scope, ok := t.Extra("scope").(string); ok {
		out.Scope = scope
	}
	if !t.Expiry.IsZero() {
		at := t.Expiry.UTC()
		out.Expiry = &at
	}
	return out
}

// Profile is the account identity reported by a provider's userinfo endpoint.
type Profile struct {
	ID    string
	Name  string
	Email string
}

// Registry is the static set of supported providers.
type Registry struct {
	providers   map[string]Provider
	redirectURL string
	states      StateStore
	client      *http.Client
	stateTTL    time.Duration
	now         func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) {
		if c != nil {
			r.client = c
		}
	}
}

func WithStateTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.stateTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry returns a registry whose callbacks land on redirectURL.
func NewRegistry(redirectURL string, states StateStore, providers []Provider, opts ...Option) *Registry {
	r := &Registry{
		providers:   make(map[string]Provider, len(providers)),
		redirectURL: redirectURL,
		states:      states,
		client:      &http.Client{Timeout: defaultHTTPTimeout},
		stateTTL:    defaultStateTTL,
		now:         time.Now,
	}
	for _, p := range providers {
		r.providers[NormalizePlatform(p.Name)] = p
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Platforms lists supported platform names in order.
func (r *Registry) Platforms() []string {
	return sortedNames(r.providers)
}

// Lookup returns the provider for platform.
func (r *Registry) Lookup(platform string) (Provider, error) {
	p, ok := r.providers[NormalizePlatform(platform)]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}
	return p, nil
}

// AuthURL issues a single-use state for userID and returns the provider's
// authorization URL carrying it.
func (r *Registry) AuthURL(ctx context.Context, userID, platform string) (string, error) {
	p, err := r.Lookup(platform)
	if err != nil {
		return "", err
	}
	if !p.Configured() {
		return "", fmt.Errorf("%w: %s", ErrNotConfigured, p.Name)
	}
	state, err := secret.GenerateToken(stateBytes)
	if err != nil {
		return "", err
	}
	opts := append([]oauth2.AuthCodeOption(nil), p.AuthOptions...)
	var verifier string
	if p.PKCE {
		verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	if _, err := r.states.CreateOAuthState(ctx, store.OAuthState{
		State:        state,
		UserID:       userID,
		Platform:     p.Name,
		CodeVerifier: verifier,
		ExpiresAt:    r.now().UTC().Add(r.stateTTL),
	}); err != nil {
		return "", fmt.Errorf("issue state: %w", err)
	}
	return p.config(r.redirectURL).AuthCodeURL(state, opts...), nil
}

// ConsumeState validates a callback state. It succeeds once per issued state.
func (r *Registry) ConsumeState(ctx context.Context, state string) (store.OAuthState, error) {
	if strings.TrimSpace(state) == "" {
		return store.OAuthState{}, ErrInvalidState
	}
	st, err := r.states.ConsumeOAuthState(ctx, state, r.now())
	if errors.Is(err, store.ErrNotFound) {
		return store.OAuthState{}, ErrInvalidState
	}
	if err != nil {
		return store.OAuthState{}, err
	}
	return st, nil
}

// Exchange trades an authorization code for tokens at the provider's token endpoint.
func (r *Registry) Exchange(ctx context.Context, platform, code, verifier string) (Token, error) {
	p, err := r.Lookup(platform)
	if err != nil {
		return Token{}, err
	}
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := p.config(r.redirectURL).Exchange(r.clientContext(ctx), code, opts...)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	return tokenFrom(tok), nil
}

// FetchProfile reads the account identity behind accessToken.
func (r *Registry) FetchProfile(ctx context.Context, platform, accessToken string) (Profile, error) {
	p, err := r.Lookup(platform)
	if err != nil {
		return Profile{}, err
	}
	if p.UserInfoURL == "" {
		return Profile{}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	req.Header.Set("Accept", "application/json")

	client := oauth2.NewClient(r.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	res, err := client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: read profile: %v", ErrExchange, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Profile{}, fmt.Errorf("%w: %s returned %d", ErrExchange, req.URL.Host, res.StatusCode)
	}

	var info struct {
		Sub   string `json:"sub"`
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Profile{}, fmt.Errorf("%w: decode profile: %v", ErrExchange, err)
	}
	id := info.Sub
	if id == "" {
		id = info.ID
	}
	return Profile{ID: id, Name: info.Name, Email: info.Email}, nil
}

// clientContext hands the registry's HTTP client to oauth2.
func (r *Registry) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, r.client)
}
