package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"qmark.app/internal/store"
)

type memStates struct {
	mu     sync.Mutex
	states map[string]store.OAuthState
}

func newMemStates() *memStates {
	return &memStates{states: map[string]store.OAuthState{}}
}

func (m *memStates) CreateOAuthState(_ context.Context, st store.OAuthState) (store.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.State] = st
	return st, nil
}

func (m *memStates) ConsumeOAuthState(_ context.Context, state string, now time.Time) (store.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[state]
	if !ok || st.ConsumedAt != nil || !now.Before(st.ExpiresAt) {
		return store.OAuthState{}, store.ErrNotFound
	}
	st.ConsumedAt = &now
	m.states[state] = st
	return st, nil
}

func (m *memStates) only(t *testing.T) store.OAuthState {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.states, 1)
	for _, st := range m.states {
		return st
	}
	return store.OAuthState{}
}

const redirect = "http://localhost:5000/api/oauth/callback"

func TestAuthURLCarriesStateAndPKCE(t *testing.T) {
	states := newMemStates()
	reg := NewRegistry(redirect, states, []Provider{GoogleProvider("gid", "gsecret"), FacebookProvider("fid", "fsecret")})

	raw, err := reg.AuthURL(context.Background(), "user-1", "Google")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	require.Equal(t, "gid", q.Get("client_id"))
	require.Equal(t, redirect, q.Get("redirect_uri"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "offline", q.Get("access_type"))
	require.Equal(t, "consent", q.Get("prompt"))
	require.Equal(t, "openid email profile", q.Get("scope"))

	st := states.only(t)
	require.Equal(t, st.State, q.Get("state"))
	require.Equal(t, "user-1", st.UserID)
	require.Equal(t, Google, st.Platform)
	require.Equal(t, oauth2.S256ChallengeFromVerifier(st.CodeVerifier), q.Get("code_challenge"))
	require.GreaterOrEqual(t, len(st.CodeVerifier), 43)
}

func TestAuthURLRejectsUnknownAndUnconfigured(t *testing.T) {
	reg := NewRegistry(redirect, newMemStates(), []Provider{GoogleProvider("", ""), FacebookProvider("fid", "fsecret")})

	_, err := reg.AuthURL(context.Background(), "user-1", "myspace")
	require.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = reg.AuthURL(context.Background(), "user-1", "google")
	require.ErrorIs(t, err, ErrNotConfigured)

	raw, err := reg.AuthURL(context.Background(), "user-1", "facebook")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Empty(t, u.Query().Get("code_challenge"))

	require.Equal(t, []string{Facebook, Google}, reg.Platforms())
}

func TestConsumeStateOnce(t *testing.T) {
	now := time.Now()
	states := newMemStates()
	reg := NewRegistry(redirect, states, []Provider{GoogleProvider("gid", "gsecret")},
		WithClock(func() time.Time { return now }), WithStateTTL(time.Minute))

	_, err := reg.AuthURL(context.Background(), "user-1", Google)
	require.NoError(t, err)
	issued := states.only(t)

	st, err := reg.ConsumeState(context.Background(), issued.State)
	require.NoError(t, err)
	require.Equal(t, "user-1", st.UserID)

	_, err = reg.ConsumeState(context.Background(), issued.State)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = reg.ConsumeState(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = reg.AuthURL(context.Background(), "user-2", Google)
	require.NoError(t, err)
	var late string
	for k, v := range states.states {
		if v.UserID == "user-2" {
			late = k
		}
	}
	now = now.Add(2 * time.Minute)
	_, err = reg.ConsumeState(context.Background(), late)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestExchange(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"expires_in":    3600,
			"scope":         "email",
		})
	}))
	defer srv.Close()

	p := GoogleProvider("gid", "gsecret")
	p.Endpoint.TokenURL = srv.URL
	reg := NewRegistry(redirect, newMemStates(), []Provider{p}, WithHTTPClient(srv.Client()))

	tok, err := reg.Exchange(context.Background(), Google, "the-code", "the-verifier")
	require.NoError(t, err)
	require.Equal(t, "at", tok.AccessToken)
	require.Equal(t, "rt", tok.RefreshToken)
	require.Equal(t, "email", tok.Scope)
	require.Equal(t, "authorization_code", got.Get("grant_type"))
	require.Equal(t, "the-code", got.Get("code"))
	require.Equal(t, "the-verifier", got.Get("code_verifier"))
	require.Equal(t, redirect, got.Get("redirect_uri"))
	require.Equal(t, "gid", got.Get("client_id"))

	require.NotNil(t, tok.Expiry)
	require.WithinDuration(t, time.Now().Add(time.Hour), *tok.Expiry, time.Minute)
	require.Equal(t, time.UTC, tok.Expiry.Location())
}

func TestTokenWithoutLifetime(t *testing.T) {
	tok := tokenFrom(&oauth2.Token{AccessToken: "at"})
	require.Nil(t, tok.Expiry)
	require.Empty(t, tok.Scope)
}

func TestExchangeFailures(t *testing.T) {
	status := http.StatusBadRequest
	body := `{"error":"invalid_grant"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p := FacebookProvider("fid", "fsecret")
	p.Endpoint.TokenURL = srv.URL
	reg := NewRegistry(redirect, newMemStates(), []Provider{p})

	_, err := reg.Exchange(context.Background(), Facebook, "c", "")
	require.ErrorIs(t, err, ErrExchange)

	status, body = http.StatusOK, `{"token_type":"bearer"}`
	_, err = reg.Exchange(context.Background(), Facebook, "c", "")
	require.ErrorIs(t, err, ErrExchange)

	body = `not json`
	_, err = reg.Exchange(context.Background(), Facebook, "c", "")
	require.ErrorIs(t, err, ErrExchange)

	_, err = reg.Exchange(context.Background(), "myspace", "c", "")
	require.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"fb-1","name":"Jane Roe","email":"jane@example.com"}`))
	}))
	defer srv.Close()

	p := FacebookProvider("fid", "fsecret")
	p.UserInfoURL = srv.URL
	reg := NewRegistry(redirect, newMemStates(), []Provider{p})

	prof, err := reg.FetchProfile(context.Background(), Facebook, "at")
	require.NoError(t, err)
	require.Equal(t, Profile{ID: "fb-1", Name: "Jane Roe", Email: "jane@example.com"}, prof)

	_, err = reg.FetchProfile(context.Background(), Facebook, "wrong")
	require.ErrorIs(t, err, ErrExchange)
}
