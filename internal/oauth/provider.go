// Package oauth builds authorization URLs for third-party platforms, tracks
// the state values it issued and exchanges callback codes for tokens.
package oauth

import (
	"sort"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	Google   = "google"
	Facebook = "facebook"
)

// Provider describes one platform's OAuth 2.0 endpoints and client credentials.
type Provider struct {
	Name         string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// PKCE adds an S256 code challenge to the authorization request.
	PKCE        bool
	AuthOptions []oauth2.AuthCodeOption
}

// Configured reports whether client credentials are present.
func (p Provider) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

func (p Provider) config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint:     p.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       p.Scopes,
	}
}

func GoogleProvider(clientID, clientSecret string) Provider {
	return Provider{
		Name:         Google,
		Endpoint:     endpoints.Google,
		UserInfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{"openid", "email", "profile"},
		PKCE:         true,
		AuthOptions:  []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce},
	}
}

func FacebookProvider(clientID, clientSecret string) Provider {
	return Provider{
		Name:         Facebook,
		Endpoint:     endpoints.Facebook,
		UserInfoURL:  "https://graph.facebook.com/me?fields=id,name,email",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{"email", "public_profile"},
	}
}

// NormalizePlatform lower-cases and trims a platform name from a URL.
func NormalizePlatform(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

func sortedNames(m map[string]Provider) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
