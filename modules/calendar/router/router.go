package router

import (
	"calendar-engine/core/middleware"
	"calendar-engine/modules/calendar/controller"

	"github.com/labstack/echo/v4"
)

type CalendarRouter struct {
	controller *controller.CalendarController
}

func NewCalendarRouter(controller *controller.CalendarController) *CalendarRouter {
	return &CalendarRouter{
		controller: controller,
	}
}

func (r *CalendarRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1")

	// The OAuth callback is hit by the provider's redirect, not by an
	// authenticated client. The state token ties it back to an organization.
	v1.GET("/calendar/callback/:provider", r.controller.Callback)

	calendarRoutes := v1.Group("/calendar")
	calendarRoutes.Use(mw.AuthMiddleware())

	// Provider connections
	calendarRoutes.POST("/connect/:provider", r.controller.Connect)
	calendarRoutes.GET("/integrations", r.controller.ListIntegrations)
	calendarRoutes.PATCH("/integrations/:provider/settings", r.controller.UpdateSettings)
	calendarRoutes.DELETE("/integrations/:provider", r.controller.Disconnect)

	// Availability and bookings
	calendarRoutes.POST("/availability", r.controller.CheckAvailability)
	calendarRoutes.POST("/bookings", r.controller.BookAppointment)
	calendarRoutes.GET("/bookings", r.controller.ListBookings)
	calendarRoutes.DELETE("/bookings/:id", r.controller.CancelAppointment)
	calendarRoutes.PATCH("/bookings/:id/reschedule", r.controller.RescheduleAppointment)
	calendarRoutes.PATCH("/bookings/:id/complete", r.controller.CompleteBooking)
	calendarRoutes.PATCH("/bookings/:id/no-show", r.controller.NoShowBooking)

	// Agent-facing appointment view
	calendarRoutes.GET("/appointments/upcoming", r.controller.UpcomingAppointments)
}
