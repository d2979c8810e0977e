package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/services/strategy"
)

// StrategyHandlers reports where an owner stands against the next signal
type StrategyHandlers struct {
	strategyService *strategy.Service
	logger          *zap.Logger
}

// NewStrategyHandlers creates a new strategy handlers instance
func NewStrategyHandlers(strategyService *strategy.Service, logger *zap.Logger) *StrategyHandlers {
	return &StrategyHandlers{strategyService: strategyService, logger: logger}
}

// GetStatus handles GET /api/v1/strategy/status
func (h *StrategyHandlers) GetStatus(c *gin.Context) {
	owner, err := getWallet(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, MsgUnauthorized, nil)
		return
	}

	status, err := h.strategyService.Status(c.Request.Context(), owner)
	if err != nil {
		h.logger.Error("Failed to evaluate strategy status", zap.String("owner", owner), zap.Error(err))
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
