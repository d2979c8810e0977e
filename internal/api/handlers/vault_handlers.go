package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/vault"
)

// VaultHandlers handles custodial balance endpoints
type VaultHandlers struct {
	vaultService *vault.Service
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewVaultHandlers creates a new vault handlers instance
func NewVaultHandlers(vaultService *vault.Service, logger *zap.Logger) *VaultHandlers {
	return &VaultHandlers{
		vaultService: vaultService,
		validator:    validator.New(),
		logger:       logger,
	}
}

// VaultMovementRequest is the body of deposit and withdraw calls. Amount is in
// human units (SOL or USDC).
type VaultMovementRequest struct {
	Asset  string          `json:"asset" validate:"required,oneof=sol usdc fee"`
	Amount decimal.Decimal `json:"amount"`
}

// GetBalances handles GET /api/v1/vault
func (h *VaultHandlers) GetBalances(c *gin.Context) {
	owner, err := getWallet(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, MsgUnauthorized, nil)
		return
	}

	balances, err := h.vaultService.GetBalances(c.Request.Context(), owner)
	if err != nil {
		h.logger.Error("Failed to load balances", zap.String("owner", owner), zap.Error(err))
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, balances)
}

// Deposit handles POST /api/v1/vault/deposit
func (h *VaultHandlers) Deposit(c *gin.Context) {
	h.move(c, h.vaultService.Deposit, "deposit")
}

// Withdraw handles POST /api/v1/vault/withdraw
func (h *VaultHandlers) Withdraw(c *gin.Context) {
	h.move(c, h.vaultService.Withdraw, "withdraw")
}

type movement func(ctx context.Context, owner string, asset entities.VaultAsset, amount decimal.Decimal) (*vault.Balances, error)

func (h *VaultHandlers) move(c *gin.Context, fn movement, op string) {
	owner, err := getWallet(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, MsgUnauthorized, nil)
		return
	}

	var req VaultMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, MsgInvalidRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, "Request validation failed",
			map[string]interface{}{"error": err.Error()})
		return
	}

	balances, err := fn(c.Request.Context(), owner, entities.VaultAsset(req.Asset), req.Amount)
	if err != nil {
		h.logger.Warn("Vault movement rejected",
			zap.String("op", op),
			zap.String("owner", owner),
			zap.String("asset", req.Asset),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, balances)
}
