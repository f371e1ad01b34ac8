package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"calendar-engine/core/database"
	"calendar-engine/core/logger"
	"calendar-engine/core/params"
	"calendar-engine/modules/calendar/entity"

	"github.com/google/uuid"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.CalendarBooking) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*entity.CalendarBooking, error)
	GetByExternalEventID(ctx context.Context, organizationID uuid.UUID, externalEventID string) (*entity.CalendarBooking, error)
	GetByReference(ctx context.Context, organizationID uuid.UUID, reference string) (*entity.CalendarBooking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.BookingStatus, cancelReason *string) error
	UpdateSchedule(ctx context.Context, booking *entity.CalendarBooking) error
	ListUpcoming(ctx context.Context, organizationID uuid.UUID, from, to time.Time) ([]entity.CalendarBooking, error)
	ListByOrganization(ctx context.Context, organizationID uuid.UUID, queryParams params.QueryParams) (*entity.PaginatedBookingEntity, error)
}

type bookingRepository struct {
	db database.IDatabase
}

func NewBookingRepository(db database.IDatabase) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.CalendarBooking) error {
	query := `
		INSERT INTO calendar_bookings (
			organization_id, integration_id, reference, caller_name, caller_phone,
			caller_email, purpose, start_time, duration_minutes, status,
			external_event_id, scheduling_url, needs_invitee_action, created_at, updated_at
		)
		VALUES (
			:organization_id, :integration_id, :reference, :caller_name, :caller_phone,
			:caller_email, :purpose, :start_time, :duration_minutes, :status,
			:external_event_id, :scheduling_url, :needs_invitee_action, :created_at, :updated_at
		)
		RETURNING id
	`
	rows, err := r.db.NamedQueryContext(ctx, query, booking)
	if err != nil {
		logger.Error("BookingRepository:Create:Error:", err)
		return err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Scan(&booking.ID)
	}
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*entity.CalendarBooking, error) {
	query := `
		SELECT * FROM calendar_bookings
		WHERE id = $1 AND organization_id = $2
	`
	var booking entity.CalendarBooking
	err := r.db.GetContext(ctx, &booking, query, id, organizationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("BookingRepository:GetByID:Error:", err)
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) GetByExternalEventID(ctx context.Context, organizationID uuid.UUID, externalEventID string) (*entity.CalendarBooking, error) {
	query := `
		SELECT * FROM calendar_bookings
		WHERE organization_id = $1 AND external_event_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var booking entity.CalendarBooking
	err := r.db.GetContext(ctx, &booking, query, organizationID, externalEventID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("BookingRepository:GetByExternalEventID:Error:", err)
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) GetByReference(ctx context.Context, organizationID uuid.UUID, reference string) (*entity.CalendarBooking, error) {
	query := `
		SELECT * FROM calendar_bookings
		WHERE organization_id = $1 AND reference = $2
	`
	var booking entity.CalendarBooking
	err := r.db.GetContext(ctx, &booking, query, organizationID, reference)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("BookingRepository:GetByReference:Error:", err)
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.BookingStatus, cancelReason *string) error {
	query := `
		UPDATE calendar_bookings
		SET status = $1,
		    cancel_reason = COALESCE($2, cancel_reason),
		    updated_at = NOW()
		WHERE id = $3
	`
	err := r.db.ExecContext(ctx, query, status, cancelReason, id)
	if err != nil {
		logger.Error("BookingRepository:UpdateStatus:Error:", err)
		return err
	}
	return nil
}

// UpdateSchedule rewrites the time and provider linkage after a
// reschedule.
func (r *bookingRepository) UpdateSchedule(ctx context.Context, booking *entity.CalendarBooking) error {
	query := `
		UPDATE calendar_bookings
		SET start_time = :start_time,
		    duration_minutes = :duration_minutes,
		    status = :status,
		    external_event_id = :external_event_id,
		    scheduling_url = :scheduling_url,
		    needs_invitee_action = :needs_invitee_action,
		    updated_at = NOW()
		WHERE id = :id
	`
	_, err := r.db.NamedExecContext(ctx, query, booking)
	if err != nil {
		logger.Error("BookingRepository:UpdateSchedule:Error:", err)
		return err
	}
	return nil
}

func (r *bookingRepository) ListUpcoming(ctx context.Context, organizationID uuid.UUID, from, to time.Time) ([]entity.CalendarBooking, error) {
	query := `
		SELECT * FROM calendar_bookings
		WHERE organization_id = $1
		AND start_time >= $2 AND start_time < $3
		AND status IN ($4, $5)
		ORDER BY start_time ASC
	`
	var bookings []entity.CalendarBooking
	err := r.db.SelectContext(ctx, &bookings, query, organizationID, from, to,
		entity.BookingStatusPending, entity.BookingStatusConfirmed)
	if err != nil {
		logger.Error("BookingRepository:ListUpcoming:Error:", err)
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepository) ListByOrganization(ctx context.Context, organizationID uuid.UUID, queryParams params.QueryParams) (*entity.PaginatedBookingEntity, error) {
	baseQuery := `FROM calendar_bookings WHERE organization_id = $1`
	args := []any{organizationID}
	if queryParams.Search != "" {
		baseQuery += ` AND (caller_name ILIKE $2 OR caller_phone ILIKE $2 OR reference ILIKE $2)`
		args = append(args, "%"+queryParams.Search+"%")
	}

	var totalItems int
	err := r.db.GetContext(ctx, &totalItems, "SELECT COUNT(*) "+baseQuery, args...)
	if err != nil {
		logger.Error("BookingRepository:ListByOrganization:Count:Error:", err)
		return nil, err
	}

	query := fmt.Sprintf("SELECT * %s ORDER BY start_time DESC LIMIT $%d OFFSET $%d",
		baseQuery, len(args)+1, len(args)+2)
	args = append(args, queryParams.PageSize, queryParams.Offset())

	var bookings []entity.CalendarBooking
	err = r.db.SelectContext(ctx, &bookings, query, args...)
	if err != nil {
		logger.Error("BookingRepository:ListByOrganization:Select:Error:", err)
		return nil, err
	}

	totalPages := 0
	if queryParams.PageSize > 0 {
		totalPages = (totalItems + queryParams.PageSize - 1) / queryParams.PageSize
	}

	return &entity.PaginatedBookingEntity{
		Items:      bookings,
		TotalItems: totalItems,
		TotalPages: totalPages,
		PageNumber: queryParams.PageNumber,
		PageSize:   queryParams.PageSize,
	}, nil
}
