package handlers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

// WalletContextKey holds the authenticated owner address
const WalletContextKey = "wallet_address"

// getWallet extracts the owner address set by the wallet middleware
func getWallet(c *gin.Context) (string, error) {
	val, exists := c.Get(WalletContextKey)
	if !exists {
		return "", fmt.Errorf("wallet address not found in context")
	}
	owner, ok := val.(string)
	if !ok || owner == "" {
		return "", fmt.Errorf("invalid wallet address in context")
	}
	return owner, nil
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if reqID, exists := c.Get("request_id"); exists {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return ""
}

// queryInt parses an integer query parameter, returning def when absent
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}
