package services

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyos/rategate/pkg/models"
)

func TestTierCatalogService_GetLimits(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	service := NewTierCatalogService(mockDB, nil, logger, 0)
	columns := []string{"tier", "requests_per_minute", "requests_per_hour", "requests_per_day",
		"max_tokens_per_request", "max_tokens_per_day", "max_documents", "max_storage_mb",
		"max_concurrent_requests", "max_agents", "memory_enabled", "updated_at"}

	t.Run("returns caps including nil columns", func(t *testing.T) {
		updated := time.Now().UTC()
		rows := pgxmock.NewRows(columns).
			AddRow("byok", models.Cap(120), models.Cap(5000), nil, nil, nil,
				models.Cap(5000), models.Cap(10240), models.Cap(20), models.Cap(50), true, updated)

		mockDB.ExpectQuery("SELECT (.+) FROM rate_limits WHERE tier").
			WithArgs("byok").
			WillReturnRows(rows)

		limits, err := service.GetLimits(context.Background(), "byok")
		require.NoError(t, err)

		assert.Equal(t, "byok", limits.Tier)
		assert.Equal(t, 120, *limits.RequestsPerMinute)
		assert.Nil(t, limits.RequestsPerDay)
		assert.Nil(t, limits.MaxTokensPerRequest)
		assert.True(t, limits.MemoryEnabled)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("unknown tier yields ErrTierNotFound", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT (.+) FROM rate_limits WHERE tier").
			WithArgs("enterprise").
			WillReturnError(pgx.ErrNoRows)

		_, err := service.GetLimits(context.Background(), "enterprise")
		assert.ErrorIs(t, err, ErrTierNotFound)
	})

	t.Run("store failure wraps ErrStoreUnavailable", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT (.+) FROM rate_limits WHERE tier").
			WithArgs("community").
			WillReturnError(assert.AnError)

		_, err := service.GetLimits(context.Background(), "community")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestTierCatalogService_UpsertTier(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	service := NewTierCatalogService(mockDB, nil, logger, 0)

	t.Run("rejects unknown tier names", func(t *testing.T) {
		err := service.UpsertTier(context.Background(), &models.TierLimits{Tier: "platinum"})
		assert.Error(t, err)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("writes all columns", func(t *testing.T) {
		limits := &models.TierLimits{
			Tier:              models.TierCommunity,
			RequestsPerMinute: models.Cap(15),
			RequestsPerHour:   models.Cap(150),
		}

		mockDB.ExpectExec("INSERT INTO rate_limits").
			WithArgs(models.TierCommunity, limits.RequestsPerMinute, limits.RequestsPerHour,
				(*int)(nil), (*int)(nil), (*int)(nil), (*int)(nil), (*int)(nil), (*int)(nil), (*int)(nil),
				false, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, service.UpsertTier(context.Background(), limits))
		assert.False(t, limits.UpdatedAt.IsZero())
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestTierCatalogService_SeedDefaults(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	service := NewTierCatalogService(mockDB, nil, logger, 0)

	for _, limits := range DefaultTierLimits() {
		mockDB.ExpectExec("INSERT INTO rate_limits").
			WithArgs(limits.Tier, limits.RequestsPerMinute, limits.RequestsPerHour, limits.RequestsPerDay,
				limits.MaxTokensPerRequest, limits.MaxTokensPerDay, limits.MaxDocuments, limits.MaxStorageMB,
				limits.MaxConcurrent, limits.MaxAgents, limits.MemoryEnabled, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, service.SeedDefaults(context.Background()))
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestDefaultTierLimits(t *testing.T) {
	defaults := DefaultTierLimits()

	byTier := make(map[string]models.TierLimits, len(defaults))
	for _, limits := range defaults {
		require.True(t, models.IsValidTier(limits.Tier), limits.Tier)
		byTier[limits.Tier] = limits
	}

	// Every resolvable tier has a seed row.
	for _, tier := range []string{models.TierCommunity, models.TierSubscriber, models.TierPremium,
		models.TierLifetime, models.TierBYOK, models.TierAdmin, models.TierDemo} {
		_, ok := byTier[tier]
		assert.True(t, ok, tier)
	}

	admin := byTier[models.TierAdmin]
	assert.True(t, admin.Unlimited())

	byok := byTier[models.TierBYOK]
	assert.Nil(t, byok.MaxTokensPerRequest)
	assert.Nil(t, byok.MaxTokensPerDay)
	assert.NotNil(t, byok.RequestsPerMinute)

	demo := byTier[models.TierDemo]
	assert.Equal(t, 3, *demo.RequestsPerMinute)
	assert.Equal(t, 2000, *demo.MaxTokensPerRequest)
}
