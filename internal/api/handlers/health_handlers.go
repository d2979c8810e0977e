package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Health statuses
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks    map[string]HealthCheck
	logger    *zap.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checks map[string]HealthCheck, logger *zap.Logger, version string) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		logger:    logger,
		version:   version,
		startTime: time.Now(),
	}
}

// Health reports each dependency. Any failing check degrades the service and
// returns 503.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := StatusHealthy
	results := make(map[string]string, len(h.checks))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status = StatusDegraded
			h.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = StatusHealthy
	}

	statusCode := http.StatusOK
	if status != StatusHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    results,
	})
}
