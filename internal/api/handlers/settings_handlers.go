package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/services/settings"
)

// SettingsHandlers handles per-owner execution settings
type SettingsHandlers struct {
	settingsService *settings.Service
	logger          *zap.Logger
}

// NewSettingsHandlers creates a new settings handlers instance
func NewSettingsHandlers(settingsService *settings.Service, logger *zap.Logger) *SettingsHandlers {
	return &SettingsHandlers{settingsService: settingsService, logger: logger}
}

// GetSettings handles GET /api/v1/settings
func (h *SettingsHandlers) GetSettings(c *gin.Context) {
	owner, err := getWallet(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, MsgUnauthorized, nil)
		return
	}

	profile, err := h.settingsService.Get(c.Request.Context(), owner)
	if err != nil {
		h.logger.Error("Failed to load settings", zap.String("owner", owner), zap.Error(err))
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateSettings handles PUT /api/v1/settings
func (h *SettingsHandlers) UpdateSettings(c *gin.Context) {
	owner, err := getWallet(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, MsgUnauthorized, nil)
		return
	}

	var update settings.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		respondBadRequest(c, MsgInvalidRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	profile, err := h.settingsService.Update(c.Request.Context(), owner, update)
	if err != nil {
		h.logger.Warn("Settings update rejected", zap.String("owner", owner), zap.Error(err))
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// ResetSettings handles POST /api/v1/settings/reset
func (h *SettingsHandlers) ResetSettings(c *gin.Context) {
	owner, err := getWallet(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, MsgUnauthorized, nil)
		return
	}

	profile, err := h.settingsService.Reset(c.Request.Context(), owner)
	if err != nil {
		h.logger.Error("Failed to reset settings", zap.String("owner", owner), zap.Error(err))
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
