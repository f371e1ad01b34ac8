package repository

import (
	"context"
	"database/sql"
	"time"

	"calendar-engine/core/database"
	"calendar-engine/core/logger"
	"calendar-engine/modules/calendar/entity"

	"github.com/google/uuid"
)

type IntegrationRepository interface {
	Upsert(ctx context.Context, integration *entity.CalendarIntegration) (*entity.CalendarIntegration, error)
	GetEnabledByOrganization(ctx context.Context, organizationID uuid.UUID) (*entity.CalendarIntegration, error)
	GetByOrganizationAndProvider(ctx context.Context, organizationID uuid.UUID, provider entity.Provider) (*entity.CalendarIntegration, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error)
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]entity.CalendarIntegration, error)
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiresAt *time.Time) error
	UpdateSettings(ctx context.Context, integration *entity.CalendarIntegration) error
	SetEnabled(ctx context.Context, organizationID uuid.UUID, provider entity.Provider, enabled bool) error
	Disconnect(ctx context.Context, organizationID uuid.UUID, provider entity.Provider) error
}

type integrationRepository struct {
	db database.IDatabase
}

func NewIntegrationRepository(db database.IDatabase) IntegrationRepository {
	return &integrationRepository{db: db}
}

// Upsert stores a connection for (organization, provider) and enables it.
// Enabling disables every other integration of the organization in the
// same transaction, so at most one stays enabled.
func (r *integrationRepository) Upsert(ctx context.Context, integration *entity.CalendarIntegration) (*entity.CalendarIntegration, error) {
	tx, err := r.db.SQLx().BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if integration.Enabled {
		disable := `
			UPDATE calendar_integrations
			SET enabled = false, updated_at = NOW()
			WHERE organization_id = $1 AND provider <> $2 AND enabled = true
		`
		if _, err := tx.ExecContext(ctx, disable, integration.OrganizationID, integration.Provider); err != nil {
			logger.Error("IntegrationRepository:Upsert:DisableOthers:Error:", err)
			return nil, err
		}
	}

	query := `
		INSERT INTO calendar_integrations (
			organization_id, provider, access_token, refresh_token, token_expires_at,
			calendar_id, scopes, enabled, default_duration_minutes,
			business_start, business_end, business_days, timezone
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (organization_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			calendar_id = EXCLUDED.calendar_id,
			scopes = EXCLUDED.scopes,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowContext(
		ctx, query,
		integration.OrganizationID, integration.Provider, integration.AccessToken,
		integration.RefreshToken, integration.TokenExpiresAt, integration.CalendarID,
		integration.Scopes, integration.Enabled, integration.DefaultDurationMinutes,
		integration.BusinessStart, integration.BusinessEnd, integration.BusinessDays,
		integration.Timezone,
	).Scan(&integration.ID, &integration.CreatedAt, &integration.UpdatedAt)
	if err != nil {
		logger.Error("IntegrationRepository:Upsert:Error:", err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return integration, nil
}

func (r *integrationRepository) GetEnabledByOrganization(ctx context.Context, organizationID uuid.UUID) (*entity.CalendarIntegration, error) {
	query := `
		SELECT * FROM calendar_integrations
		WHERE organization_id = $1 AND enabled = true
		LIMIT 1
	`
	var integration entity.CalendarIntegration
	err := r.db.GetContext(ctx, &integration, query, organizationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("IntegrationRepository:GetEnabledByOrganization:Error:", err)
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) GetByOrganizationAndProvider(ctx context.Context, organizationID uuid.UUID, provider entity.Provider) (*entity.CalendarIntegration, error) {
	query := `
		SELECT * FROM calendar_integrations
		WHERE organization_id = $1 AND provider = $2
	`
	var integration entity.CalendarIntegration
	err := r.db.GetContext(ctx, &integration, query, organizationID, provider)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("IntegrationRepository:GetByOrganizationAndProvider:Error:", err)
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error) {
	query := `SELECT * FROM calendar_integrations WHERE id = $1`
	var integration entity.CalendarIntegration
	err := r.db.GetContext(ctx, &integration, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("IntegrationRepository:GetByID:Error:", err)
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]entity.CalendarIntegration, error) {
	query := `
		SELECT * FROM calendar_integrations
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`
	var integrations []entity.CalendarIntegration
	if err := r.db.SelectContext(ctx, &integrations, query, organizationID); err != nil {
		logger.Error("IntegrationRepository:ListByOrganization:Error:", err)
		return nil, err
	}
	return integrations, nil
}

// UpdateTokens persists a refreshed token pair. A nil refreshToken keeps
// the stored one, which is how Google refreshes that omit the refresh
// token retain the original grant.
func (r *integrationRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	query := `
		UPDATE calendar_integrations
		SET access_token = $1,
		    refresh_token = COALESCE($2, refresh_token),
		    token_expires_at = $3,
		    updated_at = NOW()
		WHERE id = $4
	`
	err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, id)
	if err != nil {
		logger.Error("IntegrationRepository:UpdateTokens:Error:", err)
		return err
	}
	return nil
}

func (r *integrationRepository) UpdateSettings(ctx context.Context, integration *entity.CalendarIntegration) error {
	query := `
		UPDATE calendar_integrations
		SET calendar_id = :calendar_id,
		    default_duration_minutes = :default_duration_minutes,
		    business_start = :business_start,
		    business_end = :business_end,
		    business_days = :business_days,
		    timezone = :timezone,
		    updated_at = NOW()
		WHERE id = :id
	`
	_, err := r.db.NamedExecContext(ctx, query, integration)
	if err != nil {
		logger.Error("IntegrationRepository:UpdateSettings:Error:", err)
		return err
	}
	return nil
}

func (r *integrationRepository) SetEnabled(ctx context.Context, organizationID uuid.UUID, provider entity.Provider, enabled bool) error {
	tx, err := r.db.SQLx().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if enabled {
		disable := `
			UPDATE calendar_integrations
			SET enabled = false, updated_at = NOW()
			WHERE organization_id = $1 AND provider <> $2 AND enabled = true
		`
		if _, err := tx.ExecContext(ctx, disable, organizationID, provider); err != nil {
			logger.Error("IntegrationRepository:SetEnabled:DisableOthers:Error:", err)
			return err
		}
	}

	update := `
		UPDATE calendar_integrations
		SET enabled = $3, updated_at = NOW()
		WHERE organization_id = $1 AND provider = $2
	`
	if _, err := tx.ExecContext(ctx, update, organizationID, provider, enabled); err != nil {
		logger.Error("IntegrationRepository:SetEnabled:Error:", err)
		return err
	}

	return tx.Commit()
}

// Disconnect disables the integration and clears its tokens. The row is
// kept so settings survive a reconnect.
func (r *integrationRepository) Disconnect(ctx context.Context, organizationID uuid.UUID, provider entity.Provider) error {
	query := `
		UPDATE calendar_integrations
		SET enabled = false,
		    access_token = '',
		    refresh_token = NULL,
		    token_expires_at = NULL,
		    updated_at = NOW()
		WHERE organization_id = $1 AND provider = $2
	`
	err := r.db.ExecContext(ctx, query, organizationID, provider)
	if err != nil {
		logger.Error("IntegrationRepository:Disconnect:Error:", err)
		return err
	}
	return nil
}
