package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/services"
	"github.com/agencyos/rategate/pkg/models"
)

// DemoSessionHeader lets unauthenticated callers identify their trial
// session; the gateway mints the opaque token client-side.
const DemoSessionHeader = "X-Demo-Session-Token"

const (
	ctxPrincipal = "principal"
	ctxClaims    = "claims"
)

// Auth resolves the request to a principal: a Bearer JWT yields a user
// principal, the demo session header yields a demo principal. Requests that
// carry neither are rejected.
func Auth(authService *services.AuthService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if token := c.GetHeader(DemoSessionHeader); token != "" {
				c.Set(ctxPrincipal, models.DemoPrincipal(token))
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "MISSING_AUTHORIZATION",
					"message": "Authorization header or demo session token is required",
				},
			})
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_AUTHORIZATION_FORMAT",
					"message": "Authorization header must be in format 'Bearer <token>'",
				},
			})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(tokenParts[1])
		if err != nil {
			logger.WithError(err).Warn("Invalid JWT token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Invalid or expired token",
				},
			})
			c.Abort()
			return
		}

		c.Set(ctxPrincipal, models.UserPrincipal(claims.UserID))
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// AdminOnly gates routes on the admin claim. Runs after Auth.
func AdminOnly(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok || !claims.IsAdmin {
			logger.WithField("path", c.Request.URL.Path).Warn("Non-admin access attempt")
			c.JSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Administrator access required",
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// PrincipalFromContext returns the principal set by Auth.
func PrincipalFromContext(c *gin.Context) (models.Principal, bool) {
	v, exists := c.Get(ctxPrincipal)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := v.(models.Principal)
	return principal, ok
}

// ClaimsFromContext returns the JWT claims for user principals.
func ClaimsFromContext(c *gin.Context) (*models.JWTClaims, bool) {
	v, exists := c.Get(ctxClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*models.JWTClaims)
	return claims, ok
}
