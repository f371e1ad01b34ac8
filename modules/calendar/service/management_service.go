package service

import (
	"context"
	"strings"

	"calendar-engine/core/constants"
	"calendar-engine/core/errors"
	"calendar-engine/core/events"
	"calendar-engine/core/logger"
	"calendar-engine/core/params"
	"calendar-engine/modules/calendar/dto"
	"calendar-engine/modules/calendar/entity"

	"github.com/google/uuid"
)

func (s *calendarService) ListIntegrations(ctx context.Context, organizationID uuid.UUID) ([]entity.CalendarIntegration, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	integrations, err := s.integrations.ListByOrganization(ctx, organizationID)
	if err != nil {
		logger.Error("CalendarService:ListIntegrations:Error:", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to list calendar integrations", err)
	}
	return integrations, nil
}

func (s *calendarService) UpdateSettings(ctx context.Context, organizationID uuid.UUID, providerName string, req *dto.UpdateSettingsRequest) (*entity.CalendarIntegration, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	logger.Info("CalendarService:UpdateSettings:Start", "organization_id", organizationID, "provider", providerName)

	providerKind, ok := entity.ParseProvider(providerName)
	if !ok {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Unknown calendar provider", nil)
	}

	integration, err := s.integrations.GetByOrganizationAndProvider(ctx, organizationID, providerKind)
	if err != nil {
		logger.Error("CalendarService:UpdateSettings:Get:Error:", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load the calendar integration", err)
	}
	if integration == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "No such calendar integration", nil)
	}

	if req.CalendarID != nil {
		integration.CalendarID = *req.CalendarID
	}
	if req.DefaultDurationMinutes != nil {
		integration.DefaultDurationMinutes = *req.DefaultDurationMinutes
	}
	if req.BusinessStart != nil {
		integration.BusinessStart = *req.BusinessStart
	}
	if req.BusinessEnd != nil {
		integration.BusinessEnd = *req.BusinessEnd
	}
	if len(req.BusinessDays) > 0 {
		days := make([]string, 0, len(req.BusinessDays))
		for _, day := range req.BusinessDays {
			days = append(days, strings.ToLower(strings.TrimSpace(day)))
		}
		integration.BusinessDays = days
	}
	if req.Timezone != nil {
		integration.Timezone = *req.Timezone
	}

	// The combined window must still be usable before it is persisted.
	if _, _, err := integration.BusinessWindow(s.nowFunc()); err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Business hours window is empty or malformed", err)
	}

	if err := s.integrations.UpdateSettings(ctx, integration); err != nil {
		logger.Error("CalendarService:UpdateSettings:Error:", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to update calendar settings", err)
	}

	logger.Info("CalendarService:UpdateSettings:Success", "organization_id", organizationID, "provider", providerKind)
	return integration, nil
}

func (s *calendarService) ListBookings(ctx context.Context, organizationID uuid.UUID, queryParams params.QueryParams) (*entity.PaginatedBookingEntity, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	page, err := s.bookings.ListByOrganization(ctx, organizationID, queryParams)
	if err != nil {
		logger.Error("CalendarService:ListBookings:Error:", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to list bookings", err)
	}
	return page, nil
}

func (s *calendarService) CompleteBooking(ctx context.Context, organizationID, bookingID uuid.UUID) (*entity.CalendarBooking, *errors.AppError) {
	return s.finishBooking(ctx, organizationID, bookingID, entity.BookingStatusCompleted)
}

func (s *calendarService) MarkNoShow(ctx context.Context, organizationID, bookingID uuid.UUID) (*entity.CalendarBooking, *errors.AppError) {
	return s.finishBooking(ctx, organizationID, bookingID, entity.BookingStatusNoShow)
}

func (s *calendarService) finishBooking(ctx context.Context, organizationID, bookingID uuid.UUID, status entity.BookingStatus) (*entity.CalendarBooking, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	logger.Info("CalendarService:FinishBooking:Start", "organization_id", organizationID, "booking_id", bookingID, "status", status)

	booking, err := s.bookings.GetByID(ctx, organizationID, bookingID)
	if err != nil {
		logger.Error("CalendarService:FinishBooking:Get:Error:", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load the booking", err)
	}
	if booking == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "Booking not found", nil)
	}

	allowed := booking.CanComplete()
	if status == entity.BookingStatusNoShow {
		allowed = booking.CanMarkNoShow()
	}
	if !allowed {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Only confirmed bookings can be closed out", nil)
	}

	if err := s.bookings.UpdateStatus(ctx, booking.ID, status, nil); err != nil {
		logger.Error("CalendarService:FinishBooking:UpdateStatus:Error:", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to update the booking", err)
	}
	booking.Status = status

	eventType := events.TypeBookingCompleted
	if status == entity.BookingStatusNoShow {
		eventType = events.TypeBookingNoShow
	}
	s.publishEvent(ctx, eventType, "", booking, "")

	logger.Info("CalendarService:FinishBooking:Success", "booking_id", booking.ID, "status", status)
	return booking, nil
}
