package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyos/rategate/internal/config"
	"github.com/agencyos/rategate/internal/services"
	"github.com/agencyos/rategate/pkg/models"
)

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"

	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	authService := services.NewAuthService(cfg, logger, redisClient)

	router := gin.New()
	router.Use(Auth(authService, logger))
	router.GET("/whoami", func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"principal": principal.Key()})
	})
	return router
}

func TestAuth(t *testing.T) {
	router := newAuthRouter(t)

	t.Run("demo session header yields a demo principal", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/whoami", nil)
		req.Header.Set(DemoSessionHeader, "tok_abc")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "demo:tok_abc")
	})

	t.Run("no credentials is rejected", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/whoami", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "MISSING_AUTHORIZATION")
	})

	t.Run("malformed authorization header is rejected", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/whoami", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_AUTHORIZATION_FORMAT")
	})

	t.Run("garbage bearer token is rejected", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/whoami", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
	})
}

func TestAdminOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	router := gin.New()
	admin := router.Group("/admin")

	// Simulate the auth layer with controllable claims.
	var claims *models.JWTClaims
	admin.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set("claims", claims)
		}
		c.Next()
	})
	admin.Use(AdminOnly(logger))
	admin.GET("/tiers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	t.Run("no claims is forbidden", func(t *testing.T) {
		claims = nil
		req, _ := http.NewRequest("GET", "/admin/tiers", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("non-admin claims are forbidden", func(t *testing.T) {
		claims = &models.JWTClaims{IsAdmin: false}
		req, _ := http.NewRequest("GET", "/admin/tiers", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin claims pass", func(t *testing.T) {
		claims = &models.JWTClaims{IsAdmin: true}
		req, _ := http.NewRequest("GET", "/admin/tiers", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
