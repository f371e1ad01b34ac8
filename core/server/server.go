package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calendar-engine/core/cache"
	"calendar-engine/core/config"
	"calendar-engine/core/database"
	"calendar-engine/core/events"
	"calendar-engine/core/logger"
	"calendar-engine/modules/calendar"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
)

func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Logger.Level)

	db, err := database.InitDB(database.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
	})
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	// Redis backs OAuth states and the event queue. The API still serves
	// without it, so a broken cache degrades instead of failing startup.
	cacheStore, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		logger.Warn("Server:Run:RedisUnavailable", "error", err)
		cacheStore = nil
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cacheStore != nil {
		publisher = events.NewPublisher(cfg.Redis)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())

	e.GET("/health", func(c echo.Context) error {
		health := map[string]string{"status": "ok"}
		if cacheStore != nil {
			health["redis"] = "ok"
			if pingErr := cacheStore.Ping(c.Request().Context()); pingErr != nil {
				health["redis"] = "unavailable"
			}
		}
		return c.JSON(http.StatusOK, health)
	})

	scheduler := cron.New()
	calendar.Init(e, db, cacheStore, scheduler, publisher)
	scheduler.Start()

	var worker *events.Worker
	if cacheStore != nil {
		worker = events.StartWorker(cfg.Redis, cfg.Calendar)
	}

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("Server:Run:Listening", "addr", addr)
		if serveErr := e.Start(addr); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("Server:Run:Error:", serveErr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server:Run:ShuttingDown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scheduler.Stop()
	if worker != nil {
		worker.Shutdown()
	}
	if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}
	return nil
}
