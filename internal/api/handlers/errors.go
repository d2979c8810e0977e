package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

// Error codes as constants for consistent error responses across handlers
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeValidationError   = "VALIDATION_ERROR"
	ErrCodeInvalidID         = "INVALID_ID"
	ErrCodeInvalidSignalType = "INVALID_SIGNAL_TYPE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Error messages as constants for consistency
const (
	MsgInvalidRequest    = "Invalid request payload"
	MsgUnauthorized      = "Wallet address required"
	MsgInternalError     = "Internal server error"
	MsgInsufficientFunds = "Insufficient vault balance"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, message, det)
}

// respondDomainError maps a service error onto an HTTP status
func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.IsInvalidInput(err):
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, domainMessage(err), errors.GetErrorDetails(err))
	case stderrors.Is(err, errors.ErrInvalidSignalType):
		respondError(c, http.StatusBadRequest, ErrCodeInvalidSignalType, err.Error(), nil)
	case stderrors.Is(err, errors.ErrInsufficientBalance):
		respondError(c, http.StatusUnprocessableEntity, ErrCodeInsufficientFunds, MsgInsufficientFunds, nil)
	case errors.IsNotFound(err):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, domainMessage(err), nil)
	case stderrors.Is(err, errors.ErrInvalidTransition):
		respondError(c, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	default:
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, MsgInternalError, nil)
	}
}

func domainMessage(err error) string {
	var domainErr *errors.DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
