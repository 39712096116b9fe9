package services

import (
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/config"
	"github.com/agencyos/rategate/internal/database"
	"github.com/agencyos/rategate/internal/messaging"
)

type Services struct {
	Auth       *AuthService
	Health     *HealthService
	Catalog    *TierCatalogService
	Resolver   *TierResolverService
	Counter    *UsageCounterService
	Violations *ViolationLogService
	Demo       *DemoSessionService
	RateLimit  *RateLimitService
	Sweeper    *RetentionSweeper
	MessageBus *messaging.MessageBus
	Metrics    *Metrics
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	metrics := NewMetrics()

	authService := NewAuthService(cfg, logger, db.Redis)
	healthService := NewHealthService(cfg, logger, db)

	messageBus, err := messaging.NewMessageBus(cfg, logger)
	if err != nil {
		return nil, err
	}

	catalog := NewTierCatalogService(db.PG, db.Redis, logger, cfg.Limits.TierCacheTTL)
	resolver := NewTierResolverService(db.PG, db.Redis, logger, cfg.Limits.IdentityCacheTTL)
	counter := NewUsageCounterService(db.PG, logger)
	violations := NewViolationLogService(db.PG, messageBus, logger)
	demo := NewDemoSessionService(db.PG, cfg.Demo, logger)

	rateLimit := NewRateLimitService(
		&cfg.Limits, resolver, catalog, counter, violations, demo, metrics, logger,
	)

	sweeper := NewRetentionSweeper(cfg.Retention, counter, violations, demo, metrics, logger)
	sweeper.Start()

	return &Services{
		Auth:       authService,
		Health:     healthService,
		Catalog:    catalog,
		Resolver:   resolver,
		Counter:    counter,
		Violations: violations,
		Demo:       demo,
		RateLimit:  rateLimit,
		Sweeper:    sweeper,
		MessageBus: messageBus,
		Metrics:    metrics,
	}, nil
}

// Stop shuts down the background workers and the message bus.
func (s *Services) Stop() {
	if s.Sweeper != nil {
		s.Sweeper.Stop()
	}
	if s.MessageBus != nil {
		s.MessageBus.Close()
	}
}
