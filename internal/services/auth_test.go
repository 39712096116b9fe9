package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyos/rategate/internal/config"
	"github.com/agencyos/rategate/pkg/models"
)

func newAuthService(secret string) *AuthService {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = secret
	cfg.Auth.TokenTTL = time.Hour

	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	return NewAuthService(cfg, logger, redisClient)
}

func TestAuthService_TokenRoundTrip(t *testing.T) {
	service := newAuthService("test-secret")
	userID := uuid.New()

	token, err := service.GenerateToken(userID, models.TierPremium, true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, models.TierPremium, claims.Tier)
	assert.True(t, claims.IsAdmin)
}

func TestAuthService_RejectsForeignSignature(t *testing.T) {
	issuer := newAuthService("secret-a")
	verifier := newAuthService("secret-b")

	token, err := issuer.GenerateToken(uuid.New(), models.TierCommunity, false)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthService_RejectsGarbage(t *testing.T) {
	service := newAuthService("test-secret")

	_, err := service.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}
