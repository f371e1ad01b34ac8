package controller

import (
	"strconv"

	"calendar-engine/core/constants"
	"calendar-engine/core/controller"
	"calendar-engine/core/errors"
	"calendar-engine/core/logger"
	"calendar-engine/core/params"
	"calendar-engine/modules/calendar/dto"
	"calendar-engine/modules/calendar/service"
	"calendar-engine/modules/calendar/validator"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type CalendarController struct {
	controller.BaseController
	CalendarService service.CalendarService
}

func NewCalendarController(calendarService service.CalendarService) *CalendarController {
	return &CalendarController{
		BaseController:  controller.NewBaseController(),
		CalendarService: calendarService,
	}
}

// Connect starts the OAuth flow for a provider
// POST /api/v1/calendar/connect/:provider
func (ctrl *CalendarController) Connect(c echo.Context) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}
	userID, _ := userIDFromContext(c)

	connectResponse, appErr := ctrl.CalendarService.Connect(ctx, organizationID, userID, c.Param("provider"))
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, connectResponse, "Authorization URL created")
}

// Callback completes the OAuth flow. The provider redirects here, so the
// route is public; the state token carries the original organization.
// GET /api/v1/calendar/callback/:provider
func (ctrl *CalendarController) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	providerName := c.Param("provider")

	if denied := c.QueryParam("error"); denied != "" {
		logger.Warn("CalendarController:Callback:Denied", "provider", providerName, "error", denied)
		return ctrl.BadRequest(errors.ErrAuthExchange, "connection_failed")
	}

	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return ctrl.BadRequest(errors.ErrInvalidRequestData, "Missing code or state parameter")
	}

	callbackResponse, appErr := ctrl.CalendarService.HandleCallback(ctx, providerName, code, state)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, callbackResponse, "Calendar connected")
}

// Disconnect disables an integration and clears its tokens
// DELETE /api/v1/calendar/integrations/:provider
func (ctrl *CalendarController) Disconnect(c echo.Context) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}

	if appErr := ctrl.CalendarService.Disconnect(ctx, organizationID, c.Param("provider")); appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, nil, "Calendar disconnected")
}

// ListIntegrations returns the organization's integrations
// GET /api/v1/calendar/integrations
func (ctrl *CalendarController) ListIntegrations(c echo.Context) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}

	integrations, appErr := ctrl.CalendarService.ListIntegrations(ctx, organizationID)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, integrations, "Integrations listed")
}

// UpdateSettings changes scheduling defaults for one integration
// PATCH /api/v1/calendar/integrations/:provider/settings
func (ctrl *CalendarController) UpdateSettings(c echo.Context) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}

	requestData := new(dto.UpdateSettingsRequest)
	if err := c.Bind(requestData); err != nil {
		return ctrl.BadRequest(errors.ErrInvalidRequestData, "Invalid request data")
	}

	validationResult := validator.ValidateUpdateSettingsRequest(requestData)
	if validationResult.HasError() {
		return ctrl.BadRequest(errors.ErrInvalidInput, "Invalid request data", validationResult)
	}

	integration, appErr := ctrl.CalendarService.UpdateSettings(ctx, organizationID, c.Param("provider"), requestData)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, integration, "Calendar settings updated")
}

// CheckAvailability lists open slots for a spoken or ISO date
// POST /api/v1/calendar/availability
func (ctrl *CalendarController) CheckAvailability(c echo.Context) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}

	requestData := new(dto.AvailabilityRequest)
	if err := c.Bind(requestData); err != nil {
		return ctrl.BadRequest(errors.ErrInvalidRequestData, "Invalid request data")
	}

	validationResult := validator.ValidateAvailabilityRequest(requestData)
	if validationResult.HasError() {
		return ctrl.BadRequest(errors.ErrInvalidInput, "Invalid request data", validationResult)
	}

	availability, appErr := ctrl.CalendarService.CheckAvailability(ctx, organizationID, requestData)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, availability, "Availability checked")
}

// BookAppointment books an appointment through the active provider
// POST /api/v1/calendar/bookings
func (ctrl *CalendarController) BookAppointment(c echo.Context) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}

	requestData := new(dto.BookRequest)
	if err := c.Bind(requestData); err != nil {
		return ctrl.BadRequest(errors.ErrInvalidRequestData, "Invalid request data")
	}

	validationResult := validator.ValidateBookRequest(requestData)
	if validationResult.HasError() {
		return ctrl.BadRequest(errors.ErrInvalidInput, "Invalid request data", validationResult)
	}

	booking, appErr := ctrl.CalendarService.BookAppointment(ctx, organizationID, requestData)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, booking, "Booking processed")
}

// CancelAppointment cancels by booking id, reference, or event id
// DELETE /api/v1/calendar/bookings/:id
func (ctrl *CalendarController) CancelAppointment(c echo.Context) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}

	requestData := new(dto.CancelRequest)
	if err := c.Bind(requestData); err != nil {
		// DELETE bodies are optional; fall back to the query string.
		requestData = &dto.CancelRequest{}
	}
	if requestData.Reason == "" {
		requestData.Reason = c.QueryParam("reason")
	}

	validationResult := validator.ValidateCancelRequest(requestData)
	if validationResult.HasError() {
		return ctrl.BadRequest(errors.ErrInvalidInput, "Invalid request data", validationResult)
	}

	cancelResponse, appErr := ctrl.CalendarService.CancelAppointment(ctx, organizationID, c.Param("id"), requestData.Reason)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, cancelResponse, "Cancellation processed")
}

// RescheduleAppointment moves an appointment to a new time
// PATCH /api/v1/calendar/bookings/:id/reschedule
func (ctrl *CalendarController) RescheduleAppointment(c echo.Context) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}

	requestData := new(dto.RescheduleRequest)
	if err := c.Bind(requestData); err != nil {
		return ctrl.BadRequest(errors.ErrInvalidRequestData, "Invalid request data")
	}

	validationResult := validator.ValidateRescheduleRequest(requestData)
	if validationResult.HasError() {
		return ctrl.BadRequest(errors.ErrInvalidInput, "Invalid request data", validationResult)
	}

	rescheduleResponse, appErr := ctrl.CalendarService.RescheduleAppointment(ctx, organizationID, c.Param("id"), requestData)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, rescheduleResponse, "Reschedule processed")
}

// UpcomingAppointments merges provider events with local bookings
// GET /api/v1/calendar/appointments/upcoming?days=30
func (ctrl *CalendarController) UpcomingAppointments(c echo.Context) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}

	days, _ := strconv.Atoi(c.QueryParam("days"))

	upcoming, appErr := ctrl.CalendarService.GetUpcomingAppointments(ctx, organizationID, days)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, upcoming, "Upcoming appointments listed")
}

// ListBookings returns the paginated booking history
// GET /api/v1/calendar/bookings
func (ctrl *CalendarController) ListBookings(c echo.Context) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}

	queryParams := params.NewQueryParams(c)
	page, appErr := ctrl.CalendarService.ListBookings(ctx, organizationID, queryParams)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, page, "Bookings listed")
}

// CompleteBooking closes out a confirmed booking
// PATCH /api/v1/calendar/bookings/:id/complete
func (ctrl *CalendarController) CompleteBooking(c echo.Context) error {
	return ctrl.finishBooking(c, false)
}

// NoShowBooking records that the caller never arrived
// PATCH /api/v1/calendar/bookings/:id/no-show
func (ctrl *CalendarController) NoShowBooking(c echo.Context) error {
	return ctrl.finishBooking(c, true)
}

func (ctrl *CalendarController) finishBooking(c echo.Context, noShow bool) error {
	ctx := c.Request().Context()

	organizationID, ok := organizationIDFromContext(c)
	if !ok {
		return ctrl.Unauthorized(errors.ErrUnauthorized, "Missing organization context")
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ctrl.BadRequest(errors.ErrInvalidRequestData, "Invalid booking id")
	}

	var booking any
	var appErr *errors.AppError
	if noShow {
		booking, appErr = ctrl.CalendarService.MarkNoShow(ctx, organizationID, bookingID)
	} else {
		booking, appErr = ctrl.CalendarService.CompleteBooking(ctx, organizationID, bookingID)
	}
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}

	return ctrl.SuccessResponse(c, booking, "Booking updated")
}

func organizationIDFromContext(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(constants.ContextOrganizationID).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func userIDFromContext(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(constants.ContextUserID).(uuid.UUID)
	if !ok {
		return uuid.Nil, false
	}
	return id, true
}
