package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/repositories"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/signal"
)

// SignalHandlers handles signal ingress and signal log lookups
type SignalHandlers struct {
	receiver  *signal.Receiver
	signals   repositories.SignalLogRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSignalHandlers creates a new signal handlers instance
func NewSignalHandlers(receiver *signal.Receiver, signals repositories.SignalLogRepository, logger *zap.Logger) *SignalHandlers {
	return &SignalHandlers{
		receiver:  receiver,
		signals:   signals,
		validator: validator.New(),
		logger:    logger,
	}
}

// SignalRequest is the body of POST /signals
type SignalRequest struct {
	SignalType string          `json:"signal_type" validate:"required,oneof=SOL_TO_USDC USDC_TO_SOL"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// ReceiveSignal handles POST /api/v1/signals
func (h *SignalHandlers) ReceiveSignal(c *gin.Context) {
	var req SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, MsgInvalidRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidSignalType,
			"signal_type must be SOL_TO_USDC or USDC_TO_SOL", map[string]interface{}{"error": err.Error()})
		return
	}

	receipt, err := h.receiver.Receive(c.Request.Context(), entities.SignalType(req.SignalType), req.Metadata)
	if err != nil {
		h.logger.Error("Failed to receive signal",
			zap.String("request_id", getRequestID(c)),
			zap.String("signal_type", req.SignalType),
			zap.Error(err))
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, receipt)
}

// GetSignal handles GET /api/v1/signals/:id
func (h *SignalHandlers) GetSignal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidID, "Invalid signal id", nil)
		return
	}

	log, err := h.signals.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load signal", zap.String("signal_id", id.String()), zap.Error(err))
		respondDomainError(c, err)
		return
	}
	if log == nil {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "Signal not found", nil)
		return
	}

	c.JSON(http.StatusOK, log)
}

// ListSignals handles GET /api/v1/signals
func (h *SignalHandlers) ListSignals(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	if limit == 0 || limit > 500 {
		limit = 50
	}

	logs, err := h.signals.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list signals", zap.Error(err))
		respondDomainError(c, err)
		return
	}
	if logs == nil {
		logs = []*entities.SignalLog{}
	}

	c.JSON(http.StatusOK, gin.H{"signals": logs, "count": len(logs)})
}
