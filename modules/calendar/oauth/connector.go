package oauth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"calendar-engine/core/config"
	"calendar-engine/core/constants"
	"calendar-engine/core/errors"
	"calendar-engine/modules/calendar/entity"

	"golang.org/x/oauth2"
)

// TokenSet is the result of a successful authorization-code exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	// AccountRef is the provider-side account identifier when one has to
	// be resolved at connect time: the Calendly user URI or the Outlook
	// mailbox address.
	AccountRef string
}

// Connector handles the provider-specific half of the OAuth dance.
type Connector interface {
	GetAuthURL(redirectURI, stateToken string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error)
}

// NewConnector returns the connector for a provider, or nil when the
// provider is unknown.
func NewConnector(provider entity.Provider, cfg *config.Config) Connector {
	httpClient := &http.Client{Timeout: constants.ProviderHTTPTimeout}

	switch provider {
	case entity.ProviderGoogle:
		return NewGoogleConnector(cfg.GoogleAPI, httpClient)
	case entity.ProviderOutlook:
		return NewOutlookConnector(cfg.OutlookAPI, httpClient)
	case entity.ProviderCalendly:
		return NewCalendlyConnector(cfg.CalendlyAPI, httpClient)
	}
	return nil
}

// exchangeError wraps a failed code exchange, keeping the raw provider
// response in the cause for logs. The body is never returned to callers.
func exchangeError(provider entity.Provider, err error) *errors.AppError {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) {
		cause := fmt.Errorf("provider status %s: %s", re.Response.Status, string(re.Body))
		return errors.NewAppError(errors.ErrAuthExchange, fmt.Sprintf("%s code exchange failed", provider), cause)
	}
	return errors.NewAppError(errors.ErrAuthExchange, fmt.Sprintf("%s code exchange failed", provider), err)
}
