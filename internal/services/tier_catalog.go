package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/pkg/models"
)

const tierCacheKeyPrefix = "tier_limits:"

const tierLimitsColumns = `tier, requests_per_minute, requests_per_hour, requests_per_day,
		max_tokens_per_request, max_tokens_per_day, max_documents, max_storage_mb,
		max_concurrent_requests, max_agents, memory_enabled, updated_at`

// TierCatalogService stores and serves the per-tier caps. Reads go through a
// short redis cache; writes invalidate it.
type TierCatalogService struct {
	db       DatabaseQuerier
	redis    *redis.Client
	logger   *logrus.Logger
	cacheTTL time.Duration
}

func NewTierCatalogService(db DatabaseQuerier, redisClient *redis.Client, logger *logrus.Logger, cacheTTL time.Duration) *TierCatalogService {
	return &TierCatalogService{
		db:       db,
		redis:    redisClient,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// GetLimits returns the caps for a tier, or ErrTierNotFound.
func (s *TierCatalogService) GetLimits(ctx context.Context, tier string) (*models.TierLimits, error) {
	if limits := s.cachedLimits(ctx, tier); limits != nil {
		return limits, nil
	}

	query := `SELECT ` + tierLimitsColumns + ` FROM rate_limits WHERE tier = $1`

	var limits models.TierLimits
	err := s.db.QueryRow(ctx, query, tier).Scan(
		&limits.Tier, &limits.RequestsPerMinute, &limits.RequestsPerHour, &limits.RequestsPerDay,
		&limits.MaxTokensPerRequest, &limits.MaxTokensPerDay, &limits.MaxDocuments, &limits.MaxStorageMB,
		&limits.MaxConcurrent, &limits.MaxAgents, &limits.MemoryEnabled, &limits.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTierNotFound
		}
		return nil, storeError("get tier limits", err)
	}

	s.cacheLimits(ctx, &limits)
	return &limits, nil
}

// ListTiers returns every catalog row, for the admin surface.
func (s *TierCatalogService) ListTiers(ctx context.Context) ([]models.TierLimits, error) {
	query := `SELECT ` + tierLimitsColumns + ` FROM rate_limits ORDER BY tier`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, storeError("list tiers", err)
	}
	defer rows.Close()

	var tiers []models.TierLimits
	for rows.Next() {
		var limits models.TierLimits
		if err := rows.Scan(
			&limits.Tier, &limits.RequestsPerMinute, &limits.RequestsPerHour, &limits.RequestsPerDay,
			&limits.MaxTokensPerRequest, &limits.MaxTokensPerDay, &limits.MaxDocuments, &limits.MaxStorageMB,
			&limits.MaxConcurrent, &limits.MaxAgents, &limits.MemoryEnabled, &limits.UpdatedAt,
		); err != nil {
			return nil, storeError("scan tier row", err)
		}
		tiers = append(tiers, limits)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list tiers", err)
	}

	return tiers, nil
}

// UpsertTier creates or replaces a catalog row and drops the cache entry.
func (s *TierCatalogService) UpsertTier(ctx context.Context, limits *models.TierLimits) error {
	if !models.IsValidTier(limits.Tier) {
		return fmt.Errorf("invalid tier: %s", limits.Tier)
	}

	query := `
		INSERT INTO rate_limits (tier, requests_per_minute, requests_per_hour, requests_per_day,
			max_tokens_per_request, max_tokens_per_day, max_documents, max_storage_mb,
			max_concurrent_requests, max_agents, memory_enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tier) DO UPDATE SET
			requests_per_minute = EXCLUDED.requests_per_minute,
			requests_per_hour = EXCLUDED.requests_per_hour,
			requests_per_day = EXCLUDED.requests_per_day,
			max_tokens_per_request = EXCLUDED.max_tokens_per_request,
			max_tokens_per_day = EXCLUDED.max_tokens_per_day,
			max_documents = EXCLUDED.max_documents,
			max_storage_mb = EXCLUDED.max_storage_mb,
			max_concurrent_requests = EXCLUDED.max_concurrent_requests,
			max_agents = EXCLUDED.max_agents,
			memory_enabled = EXCLUDED.memory_enabled,
			updated_at = EXCLUDED.updated_at`

	limits.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, query,
		limits.Tier, limits.RequestsPerMinute, limits.RequestsPerHour, limits.RequestsPerDay,
		limits.MaxTokensPerRequest, limits.MaxTokensPerDay, limits.MaxDocuments, limits.MaxStorageMB,
		limits.MaxConcurrent, limits.MaxAgents, limits.MemoryEnabled, limits.UpdatedAt,
	)
	if err != nil {
		return storeError("upsert tier", err)
	}

	s.invalidate(ctx, limits.Tier)
	return nil
}

// SeedDefaults inserts any missing tier rows without touching existing ones.
func (s *TierCatalogService) SeedDefaults(ctx context.Context) error {
	for _, limits := range DefaultTierLimits() {
		query := `
			INSERT INTO rate_limits (tier, requests_per_minute, requests_per_hour, requests_per_day,
				max_tokens_per_request, max_tokens_per_day, max_documents, max_storage_mb,
				max_concurrent_requests, max_agents, memory_enabled, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (tier) DO NOTHING`

		_, err := s.db.Exec(ctx, query,
			limits.Tier, limits.RequestsPerMinute, limits.RequestsPerHour, limits.RequestsPerDay,
			limits.MaxTokensPerRequest, limits.MaxTokensPerDay, limits.MaxDocuments, limits.MaxStorageMB,
			limits.MaxConcurrent, limits.MaxAgents, limits.MemoryEnabled, time.Now().UTC(),
		)
		if err != nil {
			return storeError("seed tier "+limits.Tier, err)
		}
	}

	s.logger.Info("Tier catalog seeded")
	return nil
}

func (s *TierCatalogService) cachedLimits(ctx context.Context, tier string) *models.TierLimits {
	if s.redis == nil || s.cacheTTL <= 0 {
		return nil
	}

	data, err := s.redis.Get(ctx, tierCacheKeyPrefix+tier).Bytes()
	if err != nil {
		return nil
	}

	var limits models.TierLimits
	if err := json.Unmarshal(data, &limits); err != nil {
		return nil
	}
	return &limits
}

func (s *TierCatalogService) cacheLimits(ctx context.Context, limits *models.TierLimits) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(limits)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, tierCacheKeyPrefix+limits.Tier, data, s.cacheTTL).Err(); err != nil {
		s.logger.WithError(err).Debug("Failed to cache tier limits")
	}
}

func (s *TierCatalogService) invalidate(ctx context.Context, tier string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, tierCacheKeyPrefix+tier).Err(); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate tier limits cache")
	}
}

// DefaultTierLimits is the provisioning-time catalog. Administrators adjust
// rows afterwards through UpsertTier.
func DefaultTierLimits() []models.TierLimits {
	return []models.TierLimits{
		{
			Tier:                models.TierCommunity,
			RequestsPerMinute:   models.Cap(10),
			RequestsPerHour:     models.Cap(100),
			RequestsPerDay:      models.Cap(500),
			MaxTokensPerRequest: models.Cap(4000),
			MaxTokensPerDay:     models.Cap(100000),
			MaxDocuments:        models.Cap(50),
			MaxStorageMB:        models.Cap(100),
			MaxConcurrent:       models.Cap(2),
			MaxAgents:           models.Cap(3),
		},
		{
			Tier:                models.TierSubscriber,
			RequestsPerMinute:   models.Cap(30),
			RequestsPerHour:     models.Cap(500),
			RequestsPerDay:      models.Cap(2000),
			MaxTokensPerRequest: models.Cap(8000),
			MaxTokensPerDay:     models.Cap(500000),
			MaxDocuments:        models.Cap(500),
			MaxStorageMB:        models.Cap(1024),
			MaxConcurrent:       models.Cap(5),
			MaxAgents:           models.Cap(10),
			MemoryEnabled:       true,
		},
		{
			Tier:                models.TierPremium,
			RequestsPerMinute:   models.Cap(60),
			RequestsPerHour:     models.Cap(1500),
			RequestsPerDay:      models.Cap(10000),
			MaxTokensPerRequest: models.Cap(16000),
			MaxTokensPerDay:     models.Cap(2000000),
			MaxDocuments:        models.Cap(2000),
			MaxStorageMB:        models.Cap(5120),
			MaxConcurrent:       models.Cap(10),
			MaxAgents:           models.Cap(25),
			MemoryEnabled:       true,
		},
		{
			Tier:                models.TierLifetime,
			RequestsPerMinute:   models.Cap(60),
			RequestsPerHour:     models.Cap(2000),
			RequestsPerDay:      models.Cap(15000),
			MaxTokensPerRequest: models.Cap(16000),
			MaxTokensPerDay:     models.Cap(3000000),
			MaxDocuments:        models.Cap(5000),
			MaxStorageMB:        models.Cap(10240),
			MaxConcurrent:       models.Cap(10),
			MaxAgents:           models.Cap(50),
			MemoryEnabled:       true,
		},
		{
			// BYOK users pay for their own model usage; only request-shaped
			// caps remain.
			Tier:              models.TierBYOK,
			RequestsPerMinute: models.Cap(120),
			RequestsPerHour:   models.Cap(5000),
			MaxDocuments:      models.Cap(5000),
			MaxStorageMB:      models.Cap(10240),
			MaxConcurrent:     models.Cap(20),
			MaxAgents:         models.Cap(50),
			MemoryEnabled:     true,
		},
		{
			Tier:          models.TierAdmin,
			MemoryEnabled: true,
		},
		{
			Tier:                models.TierDemo,
			RequestsPerMinute:   models.Cap(3),
			RequestsPerHour:     models.Cap(20),
			RequestsPerDay:      models.Cap(50),
			MaxTokensPerRequest: models.Cap(2000),
			MaxTokensPerDay:     models.Cap(10000),
			MaxDocuments:        models.Cap(5),
			MaxStorageMB:        models.Cap(10),
			MaxConcurrent:       models.Cap(1),
			MaxAgents:           models.Cap(1),
		},
	}
}
