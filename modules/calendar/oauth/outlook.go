package oauth

import (
	"context"
	"encoding/json"
	"net/http"

	"calendar-engine/core/config"
	"calendar-engine/core/errors"
	"calendar-engine/core/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// outlookScopes is the exact scope list granted at connect time. Graph
// refreshes must resubmit it in full, so it is persisted verbatim on the
// integration.
var outlookScopes = []string{
	"offline_access",
	"Calendars.ReadWrite",
	"User.Read",
}

const graphBase = "https://graph.microsoft.com/v1.0"

type OutlookConnector struct {
	clientID     string
	clientSecret string
	endpoint     oauth2.Endpoint
	graphBase    string
	httpClient   *http.Client
}

func NewOutlookConnector(cfg config.OAuthAPIConfig, httpClient *http.Client) *OutlookConnector {
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "common"
	}
	return &OutlookConnector{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		endpoint:     microsoft.AzureADEndpoint(tenant),
		graphBase:    graphBase,
		httpClient:   httpClient,
	}
}

func (c *OutlookConnector) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       outlookScopes,
		Endpoint:     c.endpoint,
	}
}

func (c *OutlookConnector) GetAuthURL(redirectURI, stateToken string) string {
	return c.config(redirectURI).AuthCodeURL(stateToken)
}

func (c *OutlookConnector) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config(redirectURI).Exchange(ctx, code)
	if err != nil {
		logger.Error("OutlookConnector:ExchangeCode:Error:", err)
		return nil, exchangeError("OUTLOOK", err)
	}

	// Graph schedule lookups are keyed on the mailbox address, so
	// resolve it while we hold a fresh token.
	address, err := c.fetchAccountRef(ctx, token.AccessToken)
	if err != nil {
		logger.Error("OutlookConnector:ExchangeCode:AccountRef:", err)
		return nil, err
	}

	return &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scopes:       outlookScopes,
		AccountRef:   address,
	}, nil
}

func (c *OutlookConnector) fetchAccountRef(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.graphBase+"/me", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewAppError(errors.ErrProviderUnavailable, "outlook profile lookup failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewAppError(errors.ErrAuthExchange, "outlook profile lookup rejected", nil)
	}

	var profile struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", err
	}

	// Personal accounts often leave mail unset; the principal name is
	// still a routable address there.
	if profile.Mail != "" {
		return profile.Mail, nil
	}
	if profile.UserPrincipalName != "" {
		return profile.UserPrincipalName, nil
	}
	return "", errors.NewAppError(errors.ErrAuthExchange, "outlook profile has no mailbox address", nil)
}
