package service

import (
	"context"
	"strings"

	"calendar-engine/core/constants"
	"calendar-engine/core/errors"
	"calendar-engine/core/logger"
	"calendar-engine/core/utils"
	"calendar-engine/modules/calendar/dto"
	"calendar-engine/modules/calendar/entity"
	"calendar-engine/modules/calendar/oauth"

	"github.com/google/uuid"
)

func (s *calendarService) Connect(ctx context.Context, organizationID, userID uuid.UUID, providerName string) (*dto.ConnectResponse, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	logger.Info("CalendarService:Connect:Start", "organization_id", organizationID, "provider", providerName)

	providerKind, ok := entity.ParseProvider(providerName)
	if !ok {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Unknown calendar provider", nil)
	}
	connector := s.connectors[providerKind]
	if connector == nil {
		return nil, errors.NewAppError(errors.ErrNotConfigured, "Provider credentials are not configured", nil)
	}

	state := utils.GenerateRandomString(32)
	entry := oauth.StateEntry{
		OrganizationID: organizationID,
		UserID:         userID,
		Provider:       providerKind,
		CreatedAt:      s.nowFunc(),
	}
	if err := s.states.Save(ctx, state, entry); err != nil {
		logger.Error("CalendarService:Connect:SaveState:Error:", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to start the connection flow", err)
	}

	authURL := connector.GetAuthURL(s.redirectURI(providerKind), state)
	logger.Info("CalendarService:Connect:Success", "organization_id", organizationID, "provider", providerKind)
	return &dto.ConnectResponse{
		Provider: string(providerKind),
		AuthURL:  authURL,
	}, nil
}

func (s *calendarService) HandleCallback(ctx context.Context, providerName, code, state string) (*dto.CallbackResponse, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	logger.Info("CalendarService:HandleCallback:Start", "provider", providerName)

	providerKind, ok := entity.ParseProvider(providerName)
	if !ok {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Unknown calendar provider", nil)
	}

	entry, err := s.states.Consume(ctx, state)
	if err != nil {
		logger.Error("CalendarService:HandleCallback:ConsumeState:Error:", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to verify the connection request", err)
	}
	if entry == nil {
		logger.Warn("CalendarService:HandleCallback:InvalidState", "provider", providerKind)
		return nil, errors.NewAppError(errors.ErrUnauthorized, "invalid_state", nil)
	}
	if entry.Provider != providerKind {
		logger.Warn("CalendarService:HandleCallback:ProviderMismatch", "expected", entry.Provider, "got", providerKind)
		return nil, errors.NewAppError(errors.ErrUnauthorized, "provider_mismatch", nil)
	}

	connector := s.connectors[providerKind]
	if connector == nil {
		return nil, errors.NewAppError(errors.ErrNotConfigured, "Provider credentials are not configured", nil)
	}

	tokens, err := connector.ExchangeCode(ctx, code, s.redirectURI(providerKind))
	if err != nil {
		logger.Error("CalendarService:HandleCallback:Exchange:Error:", err)
		return nil, s.asAppError(err, errors.ErrAuthExchange, "connection_failed")
	}

	integration := &entity.CalendarIntegration{
		OrganizationID:         entry.OrganizationID,
		Provider:               providerKind,
		AccessToken:            tokens.AccessToken,
		RefreshToken:           optionalString(tokens.RefreshToken),
		CalendarID:             tokens.AccountRef,
		Scopes:                 tokens.Scopes,
		Enabled:                true,
		DefaultDurationMinutes: constants.DefaultDurationMinutes,
		BusinessStart:          constants.DefaultBusinessStart,
		BusinessEnd:            constants.DefaultBusinessEnd,
		BusinessDays:           entity.DefaultBusinessDays(),
		Timezone:               s.cfg.Calendar.Timezone,
	}
	if !tokens.ExpiresAt.IsZero() {
		expiresAt := tokens.ExpiresAt
		integration.TokenExpiresAt = &expiresAt
	}

	stored, err := s.integrations.Upsert(ctx, integration)
	if err != nil {
		logger.Error("CalendarService:HandleCallback:Upsert:Error:", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to store the calendar integration", err)
	}

	logger.Info("CalendarService:HandleCallback:Connected", "organization_id", entry.OrganizationID, "provider", providerKind, "integration_id", stored.ID)
	return &dto.CallbackResponse{
		OrganizationID: entry.OrganizationID,
		Provider:       string(providerKind),
		IntegrationID:  stored.ID,
		Enabled:        true,
	}, nil
}

func (s *calendarService) Disconnect(ctx context.Context, organizationID uuid.UUID, providerName string) *errors.AppError {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	logger.Info("CalendarService:Disconnect:Start", "organization_id", organizationID, "provider", providerName)

	providerKind, ok := entity.ParseProvider(providerName)
	if !ok {
		return errors.NewAppError(errors.ErrInvalidInput, "Unknown calendar provider", nil)
	}

	integration, err := s.integrations.GetByOrganizationAndProvider(ctx, organizationID, providerKind)
	if err != nil {
		logger.Error("CalendarService:Disconnect:Get:Error:", err)
		return errors.NewAppError(errors.ErrInternalServer, "Failed to load the calendar integration", err)
	}
	if integration == nil {
		return errors.NewAppError(errors.ErrNotFound, "No such calendar integration", nil)
	}

	if err := s.integrations.Disconnect(ctx, organizationID, providerKind); err != nil {
		logger.Error("CalendarService:Disconnect:Error:", err)
		return errors.NewAppError(errors.ErrInternalServer, "Failed to disconnect the calendar", err)
	}

	logger.Info("CalendarService:Disconnect:Success", "organization_id", organizationID, "provider", providerKind)
	return nil
}

// redirectURI prefers the explicitly configured callback for a provider
// and falls back to the conventional route under the server base URL.
func (s *calendarService) redirectURI(providerKind entity.Provider) string {
	var configured string
	switch providerKind {
	case entity.ProviderGoogle:
		configured = s.cfg.GoogleAPI.RedirectURI
	case entity.ProviderOutlook:
		configured = s.cfg.OutlookAPI.RedirectURI
	case entity.ProviderCalendly:
		configured = s.cfg.CalendlyAPI.RedirectURI
	}
	if configured != "" {
		return configured
	}
	base := strings.TrimRight(s.cfg.Server.BaseURL, "/")
	return base + "/api/v1/calendar/callback/" + strings.ToLower(string(providerKind))
}
