package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/middleware"
	"github.com/agencyos/rategate/internal/services"
	"github.com/agencyos/rategate/pkg/models"
)

type DemoHandler struct {
	logger    *logrus.Logger
	demoSvc   *services.DemoSessionService
	validator *validator.Validate
}

func NewDemoHandler(logger *logrus.Logger, demoSvc *services.DemoSessionService) *DemoHandler {
	return &DemoHandler{
		logger:    logger,
		demoSvc:   demoSvc,
		validator: validator.New(),
	}
}

type ensureSessionRequest struct {
	SessionToken   string `json:"session_token" validate:"required,min=16"`
	ReferredByCode string `json:"referred_by_code,omitempty"`
}

// EnsureSession creates or refreshes the anonymous trial session for a token.
func (h *DemoHandler) EnsureSession(c *gin.Context) {
	var req ensureSessionRequest
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

	session, err := h.demoSvc.EnsureSession(c.Request.Context(), req.SessionToken, req.ReferredByCode)
	if err != nil {
		h.logger.WithError(err).Error("Failed to ensure demo session")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "SESSION_FAILED",
				"message": "Failed to create demo session",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

// ReferralCode returns the caller's referral code, minting it on first call.
func (h *DemoHandler) ReferralCode(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok || principal.Kind != models.PrincipalDemo {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "NOT_A_DEMO_SESSION",
				"message": "Referral codes are only available to demo sessions",
			},
		})
		return
	}

	code, err := h.demoSvc.GenerateReferralCode(c.Request.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "SESSION_NOT_FOUND",
					"message": "Demo session not found or expired",
				},
			})
			return
		}
		h.logger.WithError(err).Error("Failed to generate referral code")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "REFERRAL_CODE_FAILED",
				"message": "Failed to generate referral code",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"referral_code": code}})
}

// ReferralClick records one click on a referral code.
func (h *DemoHandler) ReferralClick(c *gin.Context) {
	code := c.Param("code")

	referral, err := h.demoSvc.RecordReferralClick(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, services.ErrReferralCodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "REFERRAL_CODE_NOT_FOUND",
					"message": "Referral code not found",
				},
			})
			return
		}
		h.logger.WithError(err).Error("Failed to record referral click")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "REFERRAL_CLICK_FAILED",
				"message": "Failed to record referral click",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": referral})
}

type convertReferralRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// ConvertReferral attributes a signup to a referral click, exactly once.
func (h *DemoHandler) ConvertReferral(c *gin.Context) {
	referralID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REFERRAL_ID",
				"message": "Invalid referral id",
			},
		})
		return
	}

	var req convertReferralRequest
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

	userID, _ := uuid.Parse(req.UserID)
	if err := h.demoSvc.AttributeConversion(c.Request.Context(), referralID, userID); err != nil {
		h.logger.WithError(err).Warn("Failed to attribute referral conversion")
		c.JSON(http.StatusConflict, gin.H{
			"error": gin.H{
				"code":    "CONVERSION_FAILED",
				"message": "Referral not found or already converted",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversion attributed"})
}
