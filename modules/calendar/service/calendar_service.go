package service

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"calendar-engine/core/config"
	"calendar-engine/core/constants"
	"calendar-engine/core/errors"
	"calendar-engine/core/events"
	"calendar-engine/core/logger"
	"calendar-engine/core/params"
	"calendar-engine/core/utils"
	"calendar-engine/modules/calendar/dto"
	"calendar-engine/modules/calendar/entity"
	"calendar-engine/modules/calendar/oauth"
	"calendar-engine/modules/calendar/provider"
	"calendar-engine/modules/calendar/repository"

	"github.com/google/uuid"
)

type CalendarService interface {
	// OAuth lifecycle
	Connect(ctx context.Context, organizationID, userID uuid.UUID, providerName string) (*dto.ConnectResponse, *errors.AppError)
	HandleCallback(ctx context.Context, providerName, code, state string) (*dto.CallbackResponse, *errors.AppError)
	Disconnect(ctx context.Context, organizationID uuid.UUID, providerName string) *errors.AppError

	// Booking operations consumed by automated callers
	CheckAvailability(ctx context.Context, organizationID uuid.UUID, req *dto.AvailabilityRequest) (*dto.AvailabilityResponse, *errors.AppError)
	BookAppointment(ctx context.Context, organizationID uuid.UUID, req *dto.BookRequest) (*dto.BookingResponse, *errors.AppError)
	CancelAppointment(ctx context.Context, organizationID uuid.UUID, eventKey, reason string) (*dto.CancelResponse, *errors.AppError)
	RescheduleAppointment(ctx context.Context, organizationID uuid.UUID, eventKey string, req *dto.RescheduleRequest) (*dto.RescheduleResponse, *errors.AppError)
	GetUpcomingAppointments(ctx context.Context, organizationID uuid.UUID, days int) (*dto.UpcomingResponse, *errors.AppError)

	// Integration and booking management
	ListIntegrations(ctx context.Context, organizationID uuid.UUID) ([]entity.CalendarIntegration, *errors.AppError)
	UpdateSettings(ctx context.Context, organizationID uuid.UUID, providerName string, req *dto.UpdateSettingsRequest) (*entity.CalendarIntegration, *errors.AppError)
	ListBookings(ctx context.Context, organizationID uuid.UUID, queryParams params.QueryParams) (*entity.PaginatedBookingEntity, *errors.AppError)
	CompleteBooking(ctx context.Context, organizationID, bookingID uuid.UUID) (*entity.CalendarBooking, *errors.AppError)
	MarkNoShow(ctx context.Context, organizationID, bookingID uuid.UUID) (*entity.CalendarBooking, *errors.AppError)
}

type calendarService struct {
	integrations repository.IntegrationRepository
	bookings     repository.BookingRepository
	states       oauth.StateStore
	tokens       *provider.TokenManager
	connectors   map[entity.Provider]oauth.Connector
	publisher    events.Publisher
	httpClient   *http.Client
	cfg          *config.Config
	nowFunc      func() time.Time
}

func NewCalendarService(
	integrations repository.IntegrationRepository,
	bookings repository.BookingRepository,
	states oauth.StateStore,
	tokens *provider.TokenManager,
	publisher events.Publisher,
	cfg *config.Config,
) CalendarService {
	connectors := make(map[entity.Provider]oauth.Connector)
	for providerKind, clientID := range map[entity.Provider]string{
		entity.ProviderGoogle:   cfg.GoogleAPI.ClientID,
		entity.ProviderOutlook:  cfg.OutlookAPI.ClientID,
		entity.ProviderCalendly: cfg.CalendlyAPI.ClientID,
	} {
		if clientID == "" {
			logger.Warn("CalendarService:Init:ProviderNotConfigured", "provider", providerKind)
			continue
		}
		connectors[providerKind] = oauth.NewConnector(providerKind, cfg)
	}

	return &calendarService{
		integrations: integrations,
		bookings:     bookings,
		states:       states,
		tokens:       tokens,
		connectors:   connectors,
		publisher:    publisher,
		httpClient:   &http.Client{Timeout: constants.ProviderHTTPTimeout},
		cfg:          cfg,
		nowFunc:      time.Now,
	}
}

// getProvider resolves the organization's enabled integration into a
// hydrated provider. A (nil, nil, nil) return means no calendar is
// connected, which is an outcome, not an error.
func (s *calendarService) getProvider(ctx context.Context, organizationID uuid.UUID) (provider.CalendarProvider, *entity.CalendarIntegration, *errors.AppError) {
	integration, err := s.integrations.GetEnabledByOrganization(ctx, organizationID)
	if err != nil {
		logger.Error("CalendarService:GetProvider:Repository:Error:", err)
		return nil, nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load calendar integration", err)
	}
	if integration == nil {
		return nil, nil, nil
	}

	instance, err := provider.New(integration, provider.Deps{
		Tokens:     s.tokens,
		HTTPClient: s.httpClient,
		NowFunc:    s.nowFunc,
	})
	if err != nil {
		logger.Error("CalendarService:GetProvider:New:Error:", err)
		return nil, nil, errors.NewAppError(errors.ErrInternalServer, "Failed to build calendar provider", err)
	}

	if err := instance.Initialize(ctx); err != nil {
		logger.Error("CalendarService:GetProvider:Initialize:Error:", err)
		return nil, nil, s.asAppError(err, errors.ErrTokenRefresh, "Calendar credentials could not be refreshed")
	}
	return instance, integration, nil
}

func (s *calendarService) asAppError(err error, code errors.ErrorCode, message string) *errors.AppError {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr
	}
	return errors.NewAppError(code, message, err)
}

// errorMessage is what automated callers see. AppError messages are
// already scrubbed of provider bodies; anything else gets a generic line.
func errorMessage(err error) string {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr.Message
	}
	return "Calendar provider error"
}

// now returns the reference instant in the integration's timezone so
// spoken dates resolve to the organization's local day.
func (s *calendarService) now(integration *entity.CalendarIntegration) time.Time {
	if integration == nil {
		return s.nowFunc()
	}
	return s.nowFunc().In(integration.Location())
}

func (s *calendarService) durationFor(requested int, integration *entity.CalendarIntegration) int {
	if requested > 0 {
		return requested
	}
	if integration != nil && integration.DefaultDurationMinutes > 0 {
		return integration.DefaultDurationMinutes
	}
	return constants.DefaultDurationMinutes
}

func (s *calendarService) CheckAvailability(ctx context.Context, organizationID uuid.UUID, req *dto.AvailabilityRequest) (*dto.AvailabilityResponse, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	logger.Info("CalendarService:CheckAvailability:Start", "organization_id", organizationID, "date", req.Date)

	prov, integration, appErr := s.getProvider(ctx, organizationID)
	if appErr != nil {
		return &dto.AvailabilityResponse{Available: false, Slots: []entity.TimeSlot{}, Error: appErr.Message}, nil
	}
	if prov == nil {
		return &dto.AvailabilityResponse{Available: false, Slots: []entity.TimeSlot{}, Error: "No calendar connected"}, nil
	}

	date, err := ParseDateTime(req.Date, "", s.now(integration))
	if err != nil {
		logger.Warn("CalendarService:CheckAvailability:BadDate", "date", req.Date)
		return &dto.AvailabilityResponse{Available: false, Slots: []entity.TimeSlot{}, Error: "Could not understand the requested date"}, nil
	}

	slots, err := prov.GetAvailableSlots(ctx, date, s.durationFor(req.DurationMinutes, integration))
	if err != nil {
		logger.Error("CalendarService:CheckAvailability:Provider:Error:", err)
		return &dto.AvailabilityResponse{Available: false, Slots: []entity.TimeSlot{}, Error: errorMessage(err)}, nil
	}

	logger.Info("CalendarService:CheckAvailability:Success", "organization_id", organizationID, "slots", len(slots))
	return &dto.AvailabilityResponse{
		Available: len(slots) > 0,
		Slots:     slots,
		Date:      date.Format("2006-01-02"),
	}, nil
}

func (s *calendarService) BookAppointment(ctx context.Context, organizationID uuid.UUID, req *dto.BookRequest) (*dto.BookingResponse, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	logger.Info("CalendarService:BookAppointment:Start", "organization_id", organizationID, "caller", req.CallerName, "date", req.Date, "time", req.Time)

	prov, integration, appErr := s.getProvider(ctx, organizationID)
	if appErr != nil {
		return &dto.BookingResponse{Success: false, Error: appErr.Message, NeedsManualBooking: true}, nil
	}
	if prov == nil {
		return &dto.BookingResponse{Success: false, Error: "No calendar connected", NeedsManualBooking: true}, nil
	}

	start, err := ParseDateTime(req.Date, req.Time, s.now(integration))
	if err != nil {
		logger.Warn("CalendarService:BookAppointment:BadDateTime", "date", req.Date, "time", req.Time)
		return &dto.BookingResponse{Success: false, Error: "Could not understand the requested date and time"}, nil
	}

	duration := s.durationFor(req.DurationMinutes, integration)
	eventReq := &provider.CreateEventRequest{
		Title:           bookingTitle(req),
		Description:     req.Purpose,
		Start:           start,
		DurationMinutes: duration,
		CallerName:      req.CallerName,
		CallerPhone:     req.CallerPhone,
		CallerEmail:     req.CallerEmail,
		Purpose:         req.Purpose,
		AutoConference:  req.AutoConference,
	}

	result, err := prov.CreateEvent(ctx, eventReq)
	if err != nil {
		logger.Error("CalendarService:BookAppointment:CreateEvent:Error:", err)
		return &dto.BookingResponse{Success: false, Error: errorMessage(err), NeedsManualBooking: true}, nil
	}

	booking := s.logBooking(ctx, integration, req, start, duration, result)

	response := &dto.BookingResponse{
		Success:            true,
		EventID:            result.EventID,
		EventLink:          result.HTMLLink,
		MeetingLink:        result.MeetingLink,
		SchedulingURL:      result.SchedulingURL,
		ConfirmedTime:      &start,
		NeedsInviteeAction: result.NeedsInviteeAction,
	}
	if booking != nil {
		response.BookingID = &booking.ID
		response.Reference = booking.Reference
		s.publishEvent(ctx, events.TypeBookingCreated, string(integration.Provider), booking, "")
	}

	logger.Info("CalendarService:BookAppointment:Success", "organization_id", organizationID, "event_id", result.EventID, "needs_invitee_action", result.NeedsInviteeAction)
	return response, nil
}

// logBooking persists the local record after a provider call succeeds.
// Persistence failure is logged and swallowed; the outcome the caller
// already has must not change.
func (s *calendarService) logBooking(ctx context.Context, integration *entity.CalendarIntegration, req *dto.BookRequest, start time.Time, duration int, result *provider.EventResult) *entity.CalendarBooking {
	status := entity.BookingStatusPending
	if result.EventID != "" {
		status = entity.BookingStatusConfirmed
	}

	now := s.nowFunc()
	booking := &entity.CalendarBooking{
		OrganizationID:     integration.OrganizationID,
		IntegrationID:      integration.ID,
		Reference:          utils.GenerateBookingReference(),
		CallerName:         req.CallerName,
		CallerPhone:        req.CallerPhone,
		CallerEmail:        optionalString(req.CallerEmail),
		Purpose:            req.Purpose,
		StartTime:          start,
		DurationMinutes:    duration,
		Status:             status,
		ExternalEventID:    optionalString(result.EventID),
		SchedulingURL:      optionalString(result.SchedulingURL),
		NeedsInviteeAction: result.NeedsInviteeAction,
	}
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if err := s.bookings.Create(ctx, booking); err != nil {
		logger.Error("CalendarService:LogBooking:Error:", err)
		return nil
	}
	return booking
}

func (s *calendarService) CancelAppointment(ctx context.Context, organizationID uuid.UUID, eventKey, reason string) (*dto.CancelResponse, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	logger.Info("CalendarService:CancelAppointment:Start", "organization_id", organizationID, "event_key", eventKey)

	prov, integration, appErr := s.getProvider(ctx, organizationID)
	if appErr != nil {
		// A provider that cannot be hydrated must not block the local
		// cancellation record; proceed without the external delete.
		logger.Warn("CalendarService:CancelAppointment:ProviderDegraded", "error", appErr.Message)
	}

	booking := s.findBooking(ctx, organizationID, eventKey)
	if booking == nil && prov == nil {
		message := "No calendar connected"
		if appErr != nil {
			message = appErr.Message
		}
		return &dto.CancelResponse{Success: false, Error: message}, nil
	}
	if booking != nil && !booking.CanCancel() {
		return &dto.CancelResponse{Success: false, Error: "Booking is already " + strings.ToLower(string(booking.Status))}, nil
	}

	externalID := eventKey
	if booking != nil {
		externalID = ""
		if booking.ExternalEventID != nil {
			externalID = *booking.ExternalEventID
		}
	}

	var externalErr error
	if prov != nil && externalID != "" {
		externalErr = prov.DeleteEvent(ctx, externalID, reason)
		if externalErr != nil {
			// The organization's record of the cancellation must not
			// depend on the provider being reachable.
			logger.Error("CalendarService:CancelAppointment:ExternalDelete:Error:", externalErr)
		}
	}

	if booking == nil {
		if externalErr != nil {
			return &dto.CancelResponse{Success: false, Error: errorMessage(externalErr)}, nil
		}
		return &dto.CancelResponse{Success: true}, nil
	}

	if err := s.bookings.UpdateStatus(ctx, booking.ID, entity.BookingStatusCancelled, optionalString(reason)); err != nil {
		logger.Error("CalendarService:CancelAppointment:UpdateStatus:Error:", err)
		return &dto.CancelResponse{Success: false, Error: "Failed to record the cancellation"}, nil
	}

	providerName := ""
	if integration != nil {
		providerName = string(integration.Provider)
	}
	s.publishEvent(ctx, events.TypeBookingCancelled, providerName, booking, reason)

	logger.Info("CalendarService:CancelAppointment:Success", "organization_id", organizationID, "booking_id", booking.ID, "external_failed", externalErr != nil)
	return &dto.CancelResponse{Success: true}, nil
}

func (s *calendarService) RescheduleAppointment(ctx context.Context, organizationID uuid.UUID, eventKey string, req *dto.RescheduleRequest) (*dto.RescheduleResponse, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	logger.Info("CalendarService:RescheduleAppointment:Start", "organization_id", organizationID, "event_key", eventKey, "date", req.Date, "time", req.Time)

	prov, integration, appErr := s.getProvider(ctx, organizationID)
	if appErr != nil {
		return &dto.RescheduleResponse{Success: false, Error: appErr.Message}, nil
	}
	if prov == nil {
		return &dto.RescheduleResponse{Success: false, Error: "No calendar connected"}, nil
	}

	booking := s.findBooking(ctx, organizationID, eventKey)
	if booking != nil && !booking.CanReschedule() {
		return &dto.RescheduleResponse{Success: false, Error: "Booking is already " + strings.ToLower(string(booking.Status))}, nil
	}

	newStart, err := ParseDateTime(req.Date, req.Time, s.now(integration))
	if err != nil {
		logger.Warn("CalendarService:RescheduleAppointment:BadDateTime", "date", req.Date, "time", req.Time)
		return &dto.RescheduleResponse{Success: false, Error: "Could not understand the requested date and time"}, nil
	}

	duration := s.durationFor(0, integration)
	if booking != nil && booking.DurationMinutes > 0 {
		duration = booking.DurationMinutes
	}
	eventReq := &provider.CreateEventRequest{
		Start:           newStart,
		DurationMinutes: duration,
	}
	if booking != nil {
		eventReq.CallerName = booking.CallerName
		eventReq.CallerPhone = booking.CallerPhone
		eventReq.Purpose = booking.Purpose
		if booking.CallerEmail != nil {
			eventReq.CallerEmail = *booking.CallerEmail
		}
	}

	externalID := eventKey
	if booking != nil {
		externalID = ""
		if booking.ExternalEventID != nil {
			externalID = *booking.ExternalEventID
		}
	}

	result, err := prov.UpdateEvent(ctx, externalID, eventReq)
	if errors.IsUnsupportedOperation(err) {
		// Cancel-and-rebook for providers without in-place updates.
		logger.Info("CalendarService:RescheduleAppointment:RebookFallback", "organization_id", organizationID)
		if externalID != "" {
			if delErr := prov.DeleteEvent(ctx, externalID, "rescheduled"); delErr != nil {
				logger.Error("CalendarService:RescheduleAppointment:Delete:Error:", delErr)
			}
		}
		eventReq.Title = rescheduleTitle(booking)
		result, err = prov.CreateEvent(ctx, eventReq)
	}
	if err != nil {
		logger.Error("CalendarService:RescheduleAppointment:Provider:Error:", err)
		return &dto.RescheduleResponse{Success: false, Error: errorMessage(err)}, nil
	}

	if booking != nil {
		booking.StartTime = newStart
		booking.DurationMinutes = duration
		booking.ExternalEventID = optionalString(result.EventID)
		booking.SchedulingURL = optionalString(result.SchedulingURL)
		booking.NeedsInviteeAction = result.NeedsInviteeAction
		if result.EventID != "" {
			booking.Status = entity.BookingStatusConfirmed
		} else {
			booking.Status = entity.BookingStatusPending
		}
		if err := s.bookings.UpdateSchedule(ctx, booking); err != nil {
			logger.Error("CalendarService:RescheduleAppointment:UpdateSchedule:Error:", err)
		}
		s.publishEvent(ctx, events.TypeBookingRescheduled, string(integration.Provider), booking, "")
	}

	logger.Info("CalendarService:RescheduleAppointment:Success", "organization_id", organizationID, "event_id", result.EventID)
	return &dto.RescheduleResponse{
		Success:            true,
		NewTime:            &newStart,
		EventID:            result.EventID,
		EventLink:          result.HTMLLink,
		SchedulingURL:      result.SchedulingURL,
		NeedsInviteeAction: result.NeedsInviteeAction,
	}, nil
}

func (s *calendarService) GetUpcomingAppointments(ctx context.Context, organizationID uuid.UUID, days int) (*dto.UpcomingResponse, *errors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()

	if days <= 0 {
		days = constants.UpcomingWindowDays
	}
	logger.Info("CalendarService:GetUpcomingAppointments:Start", "organization_id", organizationID, "days", days)

	prov, _, appErr := s.getProvider(ctx, organizationID)
	if appErr != nil {
		return &dto.UpcomingResponse{Appointments: []dto.AppointmentSummary{}, Error: appErr.Message}, nil
	}

	from := s.nowFunc()
	to := from.AddDate(0, 0, days)

	bookings, err := s.bookings.ListUpcoming(ctx, organizationID, from, to)
	if err != nil {
		logger.Error("CalendarService:GetUpcomingAppointments:ListUpcoming:Error:", err)
		bookings = nil
	}
	byExternalID := make(map[string]*entity.CalendarBooking, len(bookings))
	for i := range bookings {
		if bookings[i].ExternalEventID != nil {
			byExternalID[*bookings[i].ExternalEventID] = &bookings[i]
		}
	}

	response := &dto.UpcomingResponse{Appointments: []dto.AppointmentSummary{}}
	matched := make(map[uuid.UUID]bool)

	if prov == nil {
		response.Error = "No calendar connected"
	} else {
		providerEvents, err := prov.GetEvents(ctx, from, to)
		if err != nil {
			logger.Error("CalendarService:GetUpcomingAppointments:Provider:Error:", err)
			response.Error = errorMessage(err)
		}
		for _, event := range providerEvents {
			summary := dto.AppointmentSummary{
				EventID:     event.ID,
				Title:       event.Title,
				Start:       event.Start,
				End:         event.End,
				Status:      event.Status,
				MeetingLink: event.MeetingLink,
			}
			if booking := byExternalID[event.ID]; booking != nil {
				summary.BookingID = &booking.ID
				summary.Reference = booking.Reference
				summary.CallerName = booking.CallerName
				summary.CallerPhone = booking.CallerPhone
				summary.Purpose = booking.Purpose
				matched[booking.ID] = true
			}
			response.Appointments = append(response.Appointments, summary)
		}
	}

	// Local bookings the provider did not report: provisional Calendly
	// bookings and rows whose event lives outside the selected calendar.
	for i := range bookings {
		booking := &bookings[i]
		if matched[booking.ID] {
			continue
		}
		summary := dto.AppointmentSummary{
			Title:       bookingSummaryTitle(booking),
			Start:       booking.StartTime,
			End:         booking.EndTime(),
			Status:      strings.ToLower(string(booking.Status)),
			BookingID:   &booking.ID,
			Reference:   booking.Reference,
			CallerName:  booking.CallerName,
			CallerPhone: booking.CallerPhone,
			Purpose:     booking.Purpose,
		}
		if booking.ExternalEventID != nil {
			summary.EventID = *booking.ExternalEventID
		}
		if booking.SchedulingURL != nil {
			summary.MeetingLink = *booking.SchedulingURL
		}
		response.Appointments = append(response.Appointments, summary)
	}

	sort.Slice(response.Appointments, func(i, j int) bool {
		return response.Appointments[i].Start.Before(response.Appointments[j].Start)
	})

	logger.Info("CalendarService:GetUpcomingAppointments:Success", "organization_id", organizationID, "count", len(response.Appointments))
	return response, nil
}

// findBooking resolves a caller-supplied key that may be a booking id,
// an external event id, or a booking reference.
func (s *calendarService) findBooking(ctx context.Context, organizationID uuid.UUID, key string) *entity.CalendarBooking {
	if key == "" {
		return nil
	}

	if id, err := uuid.Parse(key); err == nil {
		booking, err := s.bookings.GetByID(ctx, organizationID, id)
		if err != nil {
			logger.Error("CalendarService:FindBooking:GetByID:Error:", err)
		}
		if booking != nil {
			return booking
		}
	}

	booking, err := s.bookings.GetByExternalEventID(ctx, organizationID, key)
	if err != nil {
		logger.Error("CalendarService:FindBooking:GetByExternalEventID:Error:", err)
	}
	if booking != nil {
		return booking
	}

	booking, err = s.bookings.GetByReference(ctx, organizationID, key)
	if err != nil {
		logger.Error("CalendarService:FindBooking:GetByReference:Error:", err)
	}
	return booking
}

func (s *calendarService) publishEvent(ctx context.Context, eventType, providerName string, booking *entity.CalendarBooking, reason string) {
	if s.publisher == nil || booking == nil {
		return
	}
	event := events.BookingEvent{
		BookingID:      booking.ID,
		OrganizationID: booking.OrganizationID,
		Provider:       providerName,
		CallerName:     booking.CallerName,
		CallerPhone:    booking.CallerPhone,
		Purpose:        booking.Purpose,
		StartTime:      booking.StartTime,
		Reason:         reason,
	}
	if err := s.publisher.PublishBookingEvent(ctx, eventType, event); err != nil {
		logger.Error("CalendarService:PublishEvent:Error:", err)
	}
}

func bookingTitle(req *dto.BookRequest) string {
	if req.Title != "" {
		return req.Title
	}
	if req.Purpose != "" {
		return req.Purpose + " - " + req.CallerName
	}
	return "Appointment with " + req.CallerName
}

func rescheduleTitle(booking *entity.CalendarBooking) string {
	if booking == nil {
		return "Rescheduled appointment"
	}
	if booking.Purpose != "" {
		return booking.Purpose + " - " + booking.CallerName
	}
	return "Appointment with " + booking.CallerName
}

func bookingSummaryTitle(booking *entity.CalendarBooking) string {
	if booking.Purpose != "" {
		return booking.Purpose
	}
	return "Appointment with " + booking.CallerName
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
