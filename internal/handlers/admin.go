package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/services"
	"github.com/agencyos/rategate/internal/validation"
	"github.com/agencyos/rategate/pkg/models"
)

type AdminHandler struct {
	logger     *logrus.Logger
	catalog    *services.TierCatalogService
	violations *services.ViolationLogService
	sweeper    *services.RetentionSweeper
	schemas    *validation.SchemaValidator
}

func NewAdminHandler(
	logger *logrus.Logger,
	catalog *services.TierCatalogService,
	violations *services.ViolationLogService,
	sweeper *services.RetentionSweeper,
	schemas *validation.SchemaValidator,
) *AdminHandler {
	return &AdminHandler{
		logger:     logger,
		catalog:    catalog,
		violations: violations,
		sweeper:    sweeper,
		schemas:    schemas,
	}
}

// ListTiers returns every catalog row.
func (h *AdminHandler) ListTiers(c *gin.Context) {
	tiers, err := h.catalog.ListTiers(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list tiers")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "TIERS_UNAVAILABLE",
				"message": "Failed to list tiers",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tiers})
}

// GetTier returns the caps for one tier.
func (h *AdminHandler) GetTier(c *gin.Context) {
	limits, err := h.catalog.GetLimits(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, services.ErrTierNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "TIER_NOT_FOUND",
					"message": "Unknown tier",
				},
			})
			return
		}
		h.logger.WithError(err).Error("Failed to get tier")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "TIER_UNAVAILABLE",
				"message": "Failed to load tier",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": limits})
}

// UpsertTier replaces the caps for a tier. The raw payload is checked against
// the tier-limits JSON schema before binding, so a cap is either a
// non-negative integer or null for unlimited.
func (h *AdminHandler) UpsertTier(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Failed to read request body",
			},
		})
		return
	}

	if result := h.schemas.ValidateTierLimits(raw); !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Tier limits payload is invalid",
				"details": result.Errors,
			},
		})
		return
	}

	var limits models.TierLimits
	if err := json.Unmarshal(raw, &limits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Invalid request format",
				"details": err.Error(),
			},
		})
		return
	}

	if name := c.Param("name"); name != "" && name != limits.Tier {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "TIER_MISMATCH",
				"message": "Path tier and payload tier differ",
			},
		})
		return
	}

	if err := h.catalog.UpsertTier(c.Request.Context(), &limits); err != nil {
		h.logger.WithError(err).Error("Failed to upsert tier")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "TIER_UPSERT_FAILED",
				"message": "Failed to store tier",
			},
		})
		return
	}

	h.logger.WithField("tier", limits.Tier).Info("Tier limits updated")
	c.JSON(http.StatusOK, gin.H{"data": limits})
}

// RecentViolations lists the newest rejected-request events.
func (h *AdminHandler) RecentViolations(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	events, err := h.violations.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list violations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "VIOLATIONS_UNAVAILABLE",
				"message": "Failed to list violations",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}

// TriggerSweep runs one retention pass outside the normal interval.
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	h.sweeper.Sweep(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Sweep completed"})
}
