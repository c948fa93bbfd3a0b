package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"

	"github.com/HSouheill/barrim_mlm/app"
	"github.com/HSouheill/barrim_mlm/config"
	"github.com/HSouheill/barrim_mlm/controllers"
	"github.com/HSouheill/barrim_mlm/metrics"
	"github.com/HSouheill/barrim_mlm/middleware"
	"github.com/HSouheill/barrim_mlm/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}
	logger := config.NewLogger(cfg)

	stores, err := app.OpenStores(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("storage initialisation failed")
	}

	// Connect to Redis
	redisClient := config.ConnectRedis(cfg, logger)
	if redisClient != nil {
		stores.Checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	svc, err := app.NewServices(cfg, stores, redisClient, logger)
	if err != nil {
		logger.WithError(err).Fatal("service initialisation failed")
	}

	// Create a new Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = controllers.NewCustomValidator()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	go rateLimiter.Cleanup(rootCtx, time.Hour)

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(middleware.GlobalCORS(cfg.CORSOrigins))
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(rateLimiter.RateLimit())
	e.Use(httpsRedirect())

	mlmController := controllers.NewMLMController(svc.Placement, svc.Commissions, svc.Reporting, svc.Referrals, logger.WithField("component", "http"))
	routes.SetupRoutes(e, mlmController, cfg.JWTSecret, logger, stores.Checks)

	// Warm and periodically refresh the cached leaderboards.
	scheduler := cron.New()
	if redisClient != nil {
		if _, err := scheduler.AddFunc(cfg.LeaderboardRefreshCron, func() {
			ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
			defer cancel()
			if err := svc.Reporting.RefreshLeaderboards(ctx); err != nil {
				logger.WithError(err).Warn("leaderboard refresh failed")
			}
		}); err != nil {
			logger.WithError(err).Fatal("invalid LEADERBOARD_REFRESH_CRON")
		}
		scheduler.Start()
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("starting MLM server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	<-scheduler.Stop().Done()
	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if err := stores.Close(ctx); err != nil {
		logger.WithError(err).Warn("storage shutdown")
	}
}

func httpsRedirect() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("X-Forwarded-Proto") == "http" {
				return c.Redirect(http.StatusMovedPermanently, "https://"+c.Request().Host+c.Request().RequestURI)
			}
			return next(c)
		}
	}
}
