package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/services"
	"github.com/agencyos/rategate/pkg/models"
)

// TokenEstimateHeader carries the caller's token cost estimate for AI-backed
// endpoints; absent means a zero-token request.
const TokenEstimateHeader = "X-Token-Estimate"

// RateLimit runs CheckAndConsume for every request on the group. Denials
// become 429s with the limit metadata; store failures follow the configured
// fail-open/fail-closed policy.
func RateLimit(rateLimitService *services.RateLimitService, failOpen bool, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			// This should not happen if auth middleware is properly configured
			logger.Error("Rate limit middleware called without principal context")
			c.Next()
			return
		}

		estimatedTokens := 0
		if raw := c.GetHeader(TokenEstimateHeader); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				estimatedTokens = n
			}
		}

		reqCtx := &models.RequestContext{
			Endpoint:        c.FullPath(),
			ClientIP:        c.ClientIP(),
			EstimatedTokens: estimatedTokens,
		}

		decision, err := rateLimitService.CheckAndConsume(c.Request.Context(), principal, reqCtx)
		if err != nil {
			if errors.Is(err, services.ErrStoreUnavailable) && failOpen {
				// Cost protection, not security: let the request through and
				// say so loudly.
				logger.WithError(err).Error("Rate limit store unavailable, failing open")
				c.Next()
				return
			}
			logger.WithError(err).Error("Rate limit check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_UNAVAILABLE",
					"message": "Unable to evaluate rate limit",
				},
			})
			c.Abort()
			return
		}

		if decision.LimitValue > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(decision.LimitValue))
			remaining := decision.LimitValue - decision.Current
			if remaining < 0 {
				remaining = 0
			}
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		if !decision.ResetsAt.IsZero() {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetsAt.Unix(), 10))
		}

		if !decision.Allowed {
			logger.WithFields(logrus.Fields{
				"principal":  principal.Key(),
				"tier":       decision.Tier,
				"limit_type": decision.LimitType,
			}).Warn("Rate limit exceeded")

			if !decision.ResetsAt.IsZero() {
				retryAfter := int(time.Until(decision.ResetsAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Header("Retry-After", strconv.Itoa(retryAfter))
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
				"decision": decision,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
