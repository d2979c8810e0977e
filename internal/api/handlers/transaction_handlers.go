package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/repositories"
)

// TransactionHandlers serves an owner's swap history
type TransactionHandlers struct {
	transactions repositories.TransactionRepository
	logger       *zap.Logger
}

// NewTransactionHandlers creates a new transaction handlers instance
func NewTransactionHandlers(transactions repositories.TransactionRepository, logger *zap.Logger) *TransactionHandlers {
	return &TransactionHandlers{transactions: transactions, logger: logger}
}

// ListTransactions handles GET /api/v1/transactions?type=&status=&since=&limit=&offset=
func (h *TransactionHandlers) ListTransactions(c *gin.Context) {
	owner, err := getWallet(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, MsgUnauthorized, nil)
		return
	}

	filter := repositories.TransactionFilter{Owner: owner}

	if raw := c.Query("type"); raw != "" {
		t := entities.SignalType(raw)
		if !t.Valid() {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidSignalType, "type must be SOL_TO_USDC or USDC_TO_SOL", nil)
			return
		}
		filter.Type = &t
	}
	if raw := c.Query("status"); raw != "" {
		s := entities.TransactionStatus(raw)
		switch s {
		case entities.TransactionStatusPending, entities.TransactionStatusConfirmed, entities.TransactionStatusFailed:
			filter.Status = &s
		default:
			respondBadRequest(c, "status must be pending, confirmed or failed")
			return
		}
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondBadRequest(c, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = &since
	}
	if filter.Limit, err = queryInt(c, "limit", 50); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	if filter.Offset, err = queryInt(c, "offset", 0); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	txs, err := h.transactions.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list transactions", zap.String("owner", owner), zap.Error(err))
		respondDomainError(c, err)
		return
	}
	if txs == nil {
		txs = []*entities.Transaction{}
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}
