package oauth

import (
	"context"
	"net/http"

	"calendar-engine/core/config"
	"calendar-engine/core/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var googleScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/calendar.events",
}

type GoogleConnector struct {
	clientID     string
	clientSecret string
	endpoint     oauth2.Endpoint
	httpClient   *http.Client
}

func NewGoogleConnector(cfg config.OAuthAPIConfig, httpClient *http.Client) *GoogleConnector {
	return &GoogleConnector{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		endpoint:     google.Endpoint,
		httpClient:   httpClient,
	}
}

func (c *GoogleConnector) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       googleScopes,
		Endpoint:     c.endpoint,
	}
}

func (c *GoogleConnector) GetAuthURL(redirectURI, stateToken string) string {
	// offline + consent so Google returns a refresh token on every grant.
	return c.config(redirectURI).AuthCodeURL(stateToken, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (c *GoogleConnector) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config(redirectURI).Exchange(ctx, code)
	if err != nil {
		logger.Error("GoogleConnector:ExchangeCode:Error:", err)
		return nil, exchangeError("GOOGLE", err)
	}

	return &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scopes:       googleScopes,
	}, nil
}
