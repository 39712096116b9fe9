package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/config"
	"github.com/agencyos/rategate/internal/database"
	"github.com/agencyos/rategate/internal/handlers"
	"github.com/agencyos/rategate/internal/middleware"
	"github.com/agencyos/rategate/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Initialize services
	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	// Make sure every resolvable tier has a catalog row before traffic hits.
	if err := services.Catalog.SeedDefaults(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to seed tier catalog: %w", err)
	}

	// Initialize handlers
	app.handlers, err = handlers.New(app.logger, services)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Setup router
	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	a.services.Stop()

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	// API routes
	api := router.Group("/api/v1")
	{
		// Demo session bootstrap and referral clicks need no principal yet
		api.POST("/demo/sessions", a.handlers.Demo.EnsureSession)
		api.POST("/demo/referrals/:code/click", a.handlers.Demo.ReferralClick)

		// Everything below resolves a principal first
		authed := api.Group("")
		authed.Use(middleware.Auth(a.services.Auth, a.logger))
		{
			// Explicit check/report surface for gateways
			authed.POST("/check", a.handlers.Usage.Check)
			authed.POST("/usage/report", a.handlers.Usage.Report)
			authed.GET("/usage", a.handlers.Usage.Get)
			authed.GET("/demo/referral-code", a.handlers.Demo.ReferralCode)

			// Forward-auth surface for reverse proxies: the limiter runs as
			// middleware and consumes, the handler only acknowledges.
			gated := authed.Group("")
			gated.Use(middleware.RateLimit(a.services.RateLimit, a.config.Limits.FailOpen, a.logger))
			{
				gated.GET("/authorize", a.handlers.Usage.Authorize)
			}

			// Admin surface
			admin := authed.Group("/admin")
			admin.Use(middleware.AdminOnly(a.logger))
			{
				admin.GET("/tiers", a.handlers.Admin.ListTiers)
				admin.GET("/tiers/:name", a.handlers.Admin.GetTier)
				admin.PUT("/tiers/:name", a.handlers.Admin.UpsertTier)
				admin.GET("/violations", a.handlers.Admin.RecentViolations)
				admin.POST("/sweep", a.handlers.Admin.TriggerSweep)
				admin.POST("/demo/referrals/:id/convert", a.handlers.Demo.ConvertReferral)
			}
		}
	}

	a.router = router
}
