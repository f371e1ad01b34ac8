package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"calendar-engine/core/config"
	"calendar-engine/core/constants"
	"calendar-engine/core/errors"
	"calendar-engine/core/logger"
	"calendar-engine/modules/calendar/entity"
	"calendar-engine/modules/calendar/repository"

	"golang.org/x/sync/singleflight"
)

const (
	googleTokenURL   = "https://oauth2.googleapis.com/token"
	outlookTokenURL  = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	calendlyTokenURL = "https://auth.calendly.com/oauth/token"
)

// TokenManager refreshes provider access tokens and persists the result.
// Refreshes for the same integration are collapsed into a single
// provider call no matter how many operations hit the stale token at
// once.
type TokenManager struct {
	repo       repository.IntegrationRepository
	httpClient *http.Client
	group      singleflight.Group
	nowFunc    func() time.Time

	// endpoint overrides for tests
	endpoints map[entity.Provider]string
}

func NewTokenManager(repo repository.IntegrationRepository, httpClient *http.Client) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.ProviderHTTPTimeout}
	}
	return &TokenManager{
		repo:       repo,
		httpClient: httpClient,
		nowFunc:    time.Now,
		endpoints:  map[entity.Provider]string{},
	}
}

// IsExpired reports whether the access token needs a refresh: true when
// no expiry is known or the token is within the refresh buffer.
func (m *TokenManager) IsExpired(integration *entity.CalendarIntegration) bool {
	if integration.TokenExpiresAt == nil {
		return true
	}
	return !m.nowFunc().Before(integration.TokenExpiresAt.Add(-constants.TokenRefreshBuffer))
}

// EnsureValid refreshes the token when it is missing an expiry or about
// to expire.
func (m *TokenManager) EnsureValid(ctx context.Context, integration *entity.CalendarIntegration) error {
	if !m.IsExpired(integration) {
		return nil
	}
	return m.Refresh(ctx, integration)
}

type refreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Refresh exchanges the refresh token for a new access token and saves
// it. Concurrent callers for the same integration share one exchange.
func (m *TokenManager) Refresh(ctx context.Context, integration *entity.CalendarIntegration) error {
	result, err, _ := m.group.Do(integration.ID.String(), func() (any, error) {
		return m.refresh(ctx, integration)
	})
	if err != nil {
		return err
	}

	refreshed := result.(*refreshedToken)
	integration.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		token := refreshed.RefreshToken
		integration.RefreshToken = &token
	}
	expiresAt := refreshed.ExpiresAt
	integration.TokenExpiresAt = &expiresAt
	return nil
}

func (m *TokenManager) refresh(ctx context.Context, integration *entity.CalendarIntegration) (*refreshedToken, error) {
	if integration.RefreshToken == nil || *integration.RefreshToken == "" {
		return nil, errors.NewAppError(errors.ErrTokenRefresh, "No refresh token stored for this integration", nil)
	}

	cfg, ok := config.GetSafe()
	if !ok {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Config not initialized", nil)
	}

	tokenURL, data, err := m.refreshRequest(cfg, integration)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		logger.Error("TokenManager:Refresh:Transport:Error:", err)
		return nil, errors.NewAppError(errors.ErrProviderUnavailable,
			fmt.Sprintf("%s token endpoint unreachable", integration.Provider), err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		logger.Error("TokenManager:Refresh:BadStatus",
			"provider", integration.Provider,
			"status", resp.StatusCode,
			"body", string(body),
		)
		if resp.StatusCode >= 500 {
			return nil, errors.NewAppError(errors.ErrProviderUnavailable,
				fmt.Sprintf("%s token endpoint unavailable", integration.Provider),
				fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil, errors.NewAppError(errors.ErrTokenRefresh,
			fmt.Sprintf("%s refused the token refresh", integration.Provider),
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.NewAppError(errors.ErrTokenRefresh, "Malformed token response", err)
	}

	accessToken, _ := payload["access_token"].(string)
	if accessToken == "" {
		return nil, errors.NewAppError(errors.ErrTokenRefresh, "Token response missing access_token", nil)
	}

	expiresIn := int64(3600)
	if v, ok := payload["expires_in"].(float64); ok && v > 0 {
		expiresIn = int64(v)
	}
	expiresAt := m.nowFunc().Add(time.Duration(expiresIn) * time.Second)

	// Google omits refresh_token on refresh; the stored one stays valid
	// and must be retained.
	newRefreshToken, _ := payload["refresh_token"].(string)

	var refreshPtr *string
	if newRefreshToken != "" {
		refreshPtr = &newRefreshToken
	}
	if err := m.repo.UpdateTokens(ctx, integration.ID, accessToken, refreshPtr, &expiresAt); err != nil {
		logger.Error("TokenManager:Refresh:Persist:Error:", err)
		return nil, errors.NewAppError(errors.ErrTokenRefresh, "Failed to persist refreshed token", err)
	}

	logger.Info("TokenManager:Refresh:Success",
		"provider", integration.Provider,
		"integration_id", integration.ID,
		"expires_at", expiresAt,
	)

	return &refreshedToken{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func (m *TokenManager) refreshRequest(cfg *config.Config, integration *entity.CalendarIntegration) (string, url.Values, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", *integration.RefreshToken)

	var tokenURL string
	switch integration.Provider {
	case entity.ProviderGoogle:
		tokenURL = googleTokenURL
		data.Set("client_id", cfg.GoogleAPI.ClientID)
		data.Set("client_secret", cfg.GoogleAPI.ClientSecret)
	case entity.ProviderOutlook:
		tenant := cfg.OutlookAPI.TenantID
		if tenant == "" {
			tenant = "common"
		}
		tokenURL = fmt.Sprintf(outlookTokenURL, tenant)
		data.Set("client_id", cfg.OutlookAPI.ClientID)
		data.Set("client_secret", cfg.OutlookAPI.ClientSecret)
		// Graph requires the original scope list on every refresh.
		data.Set("scope", strings.Join(integration.Scopes, " "))
	case entity.ProviderCalendly:
		tokenURL = calendlyTokenURL
		data.Set("client_id", cfg.CalendlyAPI.ClientID)
		data.Set("client_secret", cfg.CalendlyAPI.ClientSecret)
	default:
		return "", nil, errors.NewAppError(errors.ErrInvalidInput,
			fmt.Sprintf("Unknown provider %q", integration.Provider), nil)
	}

	if override := m.endpoints[integration.Provider]; override != "" {
		tokenURL = override
	}
	return tokenURL, data, nil
}
