package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"calendar-engine/core/config"
	"calendar-engine/core/errors"
	"calendar-engine/core/logger"

	"golang.org/x/oauth2"
)

const (
	calendlyAuthURL  = "https://auth.calendly.com/oauth/authorize"
	calendlyTokenURL = "https://auth.calendly.com/oauth/token"
	calendlyAPIBase  = "https://api.calendly.com"
)

type CalendlyConnector struct {
	clientID     string
	clientSecret string
	endpoint     oauth2.Endpoint
	apiBase      string
	httpClient   *http.Client
}

func NewCalendlyConnector(cfg config.OAuthAPIConfig, httpClient *http.Client) *CalendlyConnector {
	return &CalendlyConnector{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		endpoint: oauth2.Endpoint{
			AuthURL:  calendlyAuthURL,
			TokenURL: calendlyTokenURL,
		},
		apiBase:    calendlyAPIBase,
		httpClient: httpClient,
	}
}

func (c *CalendlyConnector) config(redirectURI string) *oauth2.Config {
	// Calendly has no granular scopes; the grant covers the account.
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     c.endpoint,
	}
}

func (c *CalendlyConnector) GetAuthURL(redirectURI, stateToken string) string {
	return c.config(redirectURI).AuthCodeURL(stateToken)
}

func (c *CalendlyConnector) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config(redirectURI).Exchange(ctx, code)
	if err != nil {
		logger.Error("CalendlyConnector:ExchangeCode:Error:", err)
		return nil, exchangeError("CALENDLY", err)
	}

	// Availability and event queries are keyed by the user URI, resolve
	// it once here instead of on every provider call.
	userURI, err := c.fetchUserURI(ctx, token.AccessToken)
	if err != nil {
		logger.Error("CalendlyConnector:ExchangeCode:FetchUser:Error:", err)
		return nil, err
	}

	return &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		AccountRef:   userURI,
	}, nil
}

func (c *CalendlyConnector) fetchUserURI(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/users/me", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewAppError(errors.ErrProviderUnavailable, "Calendly user lookup failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewAppError(errors.ErrAuthExchange, "Calendly user lookup failed",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var body struct {
		Resource struct {
			URI string `json:"uri"`
		} `json:"resource"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Resource.URI == "" {
		return "", errors.NewAppError(errors.ErrAuthExchange, "Calendly user lookup returned no URI", nil)
	}
	return body.Resource.URI, nil
}
