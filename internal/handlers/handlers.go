package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/services"
	"github.com/agencyos/rategate/internal/validation"
)

type Handlers struct {
	Health *HealthHandler
	Usage  *UsageHandler
	Demo   *DemoHandler
	Admin  *AdminHandler
}

func New(logger *logrus.Logger, services *services.Services) (*Handlers, error) {
	schemaValidator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, err
	}

	return &Handlers{
		Health: NewHealthHandler(logger, services.Health),
		Usage:  NewUsageHandler(logger, services.RateLimit),
		Demo:   NewDemoHandler(logger, services.Demo),
		Admin:  NewAdminHandler(logger, services.Catalog, services.Violations, services.Sweeper, schemaValidator),
	}, nil
}
