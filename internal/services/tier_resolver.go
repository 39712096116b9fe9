package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/pkg/models"
)

const identityCacheKeyPrefix = "identity:"

// ResolveTier maps an identity to the tier that applies, first match wins:
// admin flag, then an active BYOK credential, then the stored subscription
// tier, then community. A nil identity (anonymous principal) is demo.
func ResolveTier(principal models.Principal, ident *models.Identity) string {
	if principal.Kind == models.PrincipalDemo || ident == nil {
		return models.TierDemo
	}
	if ident.IsAdmin {
		return models.TierAdmin
	}
	if ident.ActiveBYOKKeys > 0 {
		return models.TierBYOK
	}
	if ident.SubscriptionTier != "" {
		return ident.SubscriptionTier
	}
	return models.TierCommunity
}

// TierResolverService loads the identity inputs and applies ResolveTier.
// Identities are cached for a few seconds at most, so admin or BYOK changes
// take effect within the cache TTL.
type TierResolverService struct {
	db       DatabaseQuerier
	redis    *redis.Client
	logger   *logrus.Logger
	cacheTTL time.Duration
}

func NewTierResolverService(db DatabaseQuerier, redisClient *redis.Client, logger *logrus.Logger, cacheTTL time.Duration) *TierResolverService {
	return &TierResolverService{
		db:       db,
		redis:    redisClient,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// Resolve returns the effective tier for the principal.
func (s *TierResolverService) Resolve(ctx context.Context, principal models.Principal) (string, error) {
	if principal.Kind == models.PrincipalDemo {
		return models.TierDemo, nil
	}

	userID, err := uuid.Parse(principal.ID)
	if err != nil {
		return "", errors.New("invalid user id: " + principal.ID)
	}

	ident, err := s.loadIdentity(ctx, userID)
	if err != nil {
		return "", err
	}

	return ResolveTier(principal, ident), nil
}

func (s *TierResolverService) loadIdentity(ctx context.Context, userID uuid.UUID) (*models.Identity, error) {
	if ident := s.cachedIdentity(ctx, userID); ident != nil {
		return ident, nil
	}

	query := `
		SELECT u.id, u.is_admin, COALESCE(u.subscription_tier, ''),
			COUNT(k.id) FILTER (WHERE k.is_active AND (k.expires_at IS NULL OR k.expires_at > NOW()))
		FROM users u
		LEFT JOIN byok_credentials k ON k.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.id, u.is_admin, u.subscription_tier`

	var ident models.Identity
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&ident.UserID, &ident.IsAdmin, &ident.SubscriptionTier, &ident.ActiveBYOKKeys,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Unknown user ids fall through to the lowest tier rather than
			// failing the request.
			s.logger.WithField("user_id", userID).Warn("Identity not found, resolving to community")
			return &models.Identity{UserID: userID}, nil
		}
		return nil, storeError("load identity", err)
	}

	s.cacheIdentity(ctx, &ident)
	return &ident, nil
}

func (s *TierResolverService) cachedIdentity(ctx context.Context, userID uuid.UUID) *models.Identity {
	if s.redis == nil || s.cacheTTL <= 0 {
		return nil
	}

	data, err := s.redis.Get(ctx, identityCacheKeyPrefix+userID.String()).Bytes()
	if err != nil {
		return nil
	}

	var ident models.Identity
	if err := json.Unmarshal(data, &ident); err != nil {
		return nil
	}
	return &ident
}

func (s *TierResolverService) cacheIdentity(ctx context.Context, ident *models.Identity) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(ident)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, identityCacheKeyPrefix+ident.UserID.String(), data, s.cacheTTL).Err(); err != nil {
		s.logger.WithError(err).Debug("Failed to cache identity")
	}
}

// InvalidateIdentity drops the cached identity, used when a credential is
// revoked or an admin flag flips so the change applies immediately.
func (s *TierResolverService) InvalidateIdentity(ctx context.Context, userID uuid.UUID) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, identityCacheKeyPrefix+userID.String()).Err(); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate identity cache")
	}
}
