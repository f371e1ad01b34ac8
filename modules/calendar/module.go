package calendar

import (
	"context"
	"net/http"

	"calendar-engine/core/cache"
	"calendar-engine/core/config"
	"calendar-engine/core/constants"
	"calendar-engine/core/database"
	"calendar-engine/core/events"
	"calendar-engine/core/logger"
	"calendar-engine/core/middleware"
	"calendar-engine/modules/calendar/controller"
	"calendar-engine/modules/calendar/oauth"
	"calendar-engine/modules/calendar/provider"
	"calendar-engine/modules/calendar/repository"
	"calendar-engine/modules/calendar/router"
	"calendar-engine/modules/calendar/service"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
)

func Init(e *echo.Echo, db database.IDatabase, cacheStore cache.Cache, scheduler *cron.Cron, publisher events.Publisher) {
	cfg := config.Get()

	// Initialize layers
	integrationRepo := repository.NewIntegrationRepository(db)
	bookingRepo := repository.NewBookingRepository(db)

	// Pending OAuth states live in Redis so any node can complete a
	// callback. Without Redis a single-node memory store still works.
	var states oauth.StateStore
	if cacheStore != nil {
		states = oauth.NewRedisStateStore(cacheStore)
	} else {
		states = oauth.NewMemoryStateStore()
	}

	tokens := provider.NewTokenManager(integrationRepo, &http.Client{Timeout: constants.ProviderHTTPTimeout})
	calendarService := service.NewCalendarService(integrationRepo, bookingRepo, states, tokens, publisher, cfg)
	calendarController := controller.NewCalendarController(calendarService)

	// Get middleware for auth
	mw := middleware.NewMiddleware()

	// Setup routes
	router.NewCalendarRouter(calendarController).Setup(e, mw)

	// Expired states are already rejected at read time; the sweep just
	// keeps abandoned flows from piling up.
	if scheduler != nil {
		_, err := scheduler.AddFunc("@hourly", func() {
			removed, sweepErr := states.Sweep(context.Background())
			if sweepErr != nil {
				logger.Error("CalendarModule:StateSweep:Error:", sweepErr)
				return
			}
			if removed > 0 {
				logger.Info("CalendarModule:StateSweep:Done", "removed", removed)
			}
		})
		if err != nil {
			logger.Error("CalendarModule:StateSweep:Schedule:Error:", err)
		}
	}
}
