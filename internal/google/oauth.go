package google

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ClientConfig identifies the OAuth client applytrack uses with Google.
// AuthURL and TokenURL override Google's endpoints when set.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

// OAuth2Config builds the oauth2 configuration for c.
func (c ClientConfig) OAuth2Config() *oauth2.Config {
	endpoint := google.Endpoint
	if c.AuthURL != "" {
		endpoint.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		endpoint.TokenURL = c.TokenURL
	}

	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}
