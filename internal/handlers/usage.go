package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/middleware"
	"github.com/agencyos/rategate/internal/services"
	"github.com/agencyos/rategate/pkg/models"
)

type UsageHandler struct {
	logger    *logrus.Logger
	rateLimit *services.RateLimitService
	validator *validator.Validate
}

func NewUsageHandler(logger *logrus.Logger, rateLimit *services.RateLimitService) *UsageHandler {
	return &UsageHandler{
		logger:    logger,
		rateLimit: rateLimit,
		validator: validator.New(),
	}
}

// Get reports the caller's current consumption against the caps in effect.
func (h *UsageHandler) Get(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "MISSING_PRINCIPAL",
				"message": "No principal in request context",
			},
		})
		return
	}

	report, err := h.rateLimit.Usage(c.Request.Context(), principal)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build usage report")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "USAGE_UNAVAILABLE",
				"message": "Failed to read usage",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

type checkRequest struct {
	Endpoint        string `json:"endpoint"`
	EstimatedTokens int    `json:"estimated_tokens" validate:"gte=0"`
}

// Check runs a rate-limit decision for the caller without going through the
// middleware, for gateways that gate work the limiter never sees as HTTP.
func (h *UsageHandler) Check(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "MISSING_PRINCIPAL",
				"message": "No principal in request context",
			},
		})
		return
	}

	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Invalid request format",
				"details": err.Error(),
			},
		})
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Request validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	decision, err := h.rateLimit.CheckAndConsume(c.Request.Context(), principal, &models.RequestContext{
		Endpoint:        req.Endpoint,
		ClientIP:        c.ClientIP(),
		EstimatedTokens: req.EstimatedTokens,
	})
	if err != nil {
		h.logger.WithError(err).Error("Rate limit check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":    "RATE_LIMIT_UNAVAILABLE",
				"message": "Unable to evaluate rate limit",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}

// Authorize is the forward-auth endpoint for reverse proxies. The rate-limit
// middleware has already consumed and set the response headers, so reaching
// the handler means the request is allowed.
func (h *UsageHandler) Authorize(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

type reportUsageRequest struct {
	EstimatedTokens int `json:"estimated_tokens" validate:"gte=0"`
	ActualTokens    int `json:"actual_tokens" validate:"gte=0"`
}

// Report reconciles the token windows once actual downstream usage is known.
func (h *UsageHandler) Report(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "MISSING_PRINCIPAL",
				"message": "No principal in request context",
			},
		})
		return
	}

	var req reportUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Invalid request format",
				"details": err.Error(),
			},
		})
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Request validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.rateLimit.ReportUsage(c.Request.Context(), principal, req.EstimatedTokens, req.ActualTokens); err != nil {
		h.logger.WithError(err).Error("Failed to reconcile token usage")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "USAGE_REPORT_FAILED",
				"message": "Failed to record usage",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Usage recorded"})
}
