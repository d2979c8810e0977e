// Package idempotency replays the stored response for a repeated
// Idempotency-Key instead of running the handler again.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// HeaderIdempotencyKey is the HTTP header for idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// DefaultTTL is how long a key is remembered
	DefaultTTL = 24 * time.Hour

	// ReservationTTL bounds how long a crashed request can hold its key
	ReservationTTL = 2 * time.Minute

	// MaxKeyLength bounds client supplied keys
	MaxKeyLength = 255

	// MaxBodySize is the largest body hashed for a key
	MaxBodySize = 1 << 20
)

// responseWriter wraps gin.ResponseWriter to capture response
type responseWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// ValidateKey checks a client supplied key
func ValidateKey(key string) error {
	if len(key) > MaxKeyLength {
		return fmt.Errorf("idempotency key longer than %d characters", MaxKeyLength)
	}
	for _, r := range key {
		if r < 0x21 || r > 0x7e {
			return fmt.Errorf("idempotency key must be printable ASCII without spaces")
		}
	}
	return nil
}

// HashRequest fingerprints a request so a reused key with a different body is rejected
func HashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Middleware creates an idempotency middleware. Keys are scoped by the
// authenticated wallet when scopeKey is set on the context. A key is reserved
// before the handler runs, so a concurrent request with the same key gets 409
// instead of running the handler twice. Server errors release the key so the
// client can retry them.
func Middleware(store Store, scopeKey string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only apply to state-changing methods
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		// Idempotency is optional; without a key proceed normally
		idempotencyKey := c.GetHeader(HeaderIdempotencyKey)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		if err := ValidateKey(idempotencyKey); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":       "INVALID_IDEMPOTENCY_KEY",
				"message":    err.Error(),
				"request_id": c.GetString("request_id"),
			})
			return
		}

		bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodySize))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":       "INVALID_REQUEST",
				"message":    "Failed to read request body",
				"request_id": c.GetString("request_id"),
			})
			return
		}
		// Restore body for downstream handlers
		c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		storageKey := idempotencyKey
		if scope := c.GetString(scopeKey); scope != "" {
			storageKey = scope + ":" + idempotencyKey
		}
		requestHash := HashRequest(c.Request.Method, c.Request.URL.Path, bodyBytes)

		existing, err := store.Get(c.Request.Context(), storageKey)
		if err != nil {
			// Fail open
			logger.Error("Failed to check idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			c.Next()
			return
		}

		if existing != nil {
			replay(c, existing, requestHash, idempotencyKey, logger)
			return
		}

		placeholder := &Record{
			RequestMethod: c.Request.Method,
			RequestPath:   c.Request.URL.Path,
			RequestHash:   requestHash,
			CreatedAt:     time.Now().UTC(),
		}
		reserved, err := store.Reserve(c.Request.Context(), storageKey, placeholder, ReservationTTL)
		if err != nil {
			logger.Error("Failed to reserve idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			c.Next()
			return
		}
		if !reserved {
			// Lost the race to a concurrent request; answer from whatever it holds now
			existing, err = store.Get(c.Request.Context(), storageKey)
			if err != nil || existing == nil {
				existing = placeholder
			}
			replay(c, existing, requestHash, idempotencyKey, logger)
			return
		}

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
			status:         http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		// The request context may already be cancelled once the handler returns
		ctx := context.WithoutCancel(c.Request.Context())
		if writer.status >= http.StatusInternalServerError {
			release(ctx, store, storageKey, idempotencyKey, logger)
			return
		}

		record := &Record{
			RequestMethod:  c.Request.Method,
			RequestPath:    c.Request.URL.Path,
			RequestHash:    requestHash,
			ResponseStatus: writer.status,
			ResponseBody:   writer.body.Bytes(),
			CreatedAt:      time.Now().UTC(),
		}
		if err := store.Save(ctx, storageKey, record, DefaultTTL); err != nil {
			// Log error but don't fail the request
			logger.Error("Failed to store idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			release(ctx, store, storageKey, idempotencyKey, logger)
		}
	}
}

// replay answers from a record already held for the key: a conflict for a
// different request or one still running, the stored response otherwise.
func replay(c *gin.Context, existing *Record, requestHash, idempotencyKey string, logger *zap.Logger) {
	if existing.RequestHash != requestHash {
		logger.Warn("Idempotency key reused with a different request",
			zap.String("idempotency_key", idempotencyKey))
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"code":       "IDEMPOTENCY_CONFLICT",
			"message":    "Idempotency key was used with a different request",
			"request_id": c.GetString("request_id"),
		})
		return
	}

	if existing.InFlight() {
		logger.Info("Idempotency key is held by a request in progress",
			zap.String("idempotency_key", idempotencyKey))
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"code":       "IDEMPOTENCY_IN_PROGRESS",
			"message":    "A request with this idempotency key is still being processed",
			"request_id": c.GetString("request_id"),
		})
		return
	}

	logger.Info("Replaying stored response",
		zap.String("idempotency_key", idempotencyKey),
		zap.Int("status", existing.ResponseStatus))
	c.Header("Idempotent-Replayed", "true")
	c.Data(existing.ResponseStatus, "application/json; charset=utf-8", existing.ResponseBody)
	c.Abort()
}

func release(ctx context.Context, store Store, storageKey, idempotencyKey string, logger *zap.Logger) {
	if err := store.Release(ctx, storageKey); err != nil {
		logger.Error("Failed to release idempotency key",
			zap.String("idempotency_key", idempotencyKey),
			zap.Error(err))
	}
}
