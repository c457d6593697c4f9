package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khanmassab/flixers/internal/v1/logging"
	"github.com/khanmassab/flixers/internal/v1/mirror"
	"go.uber.org/zap"
)

// Handler manages health check endpoints
type Handler struct {
	store     *mirror.Store
	startedAt time.Time
}

// NewHandler creates a new health check handler
func NewHandler(store *mirror.Store) *Handler {
	return &Handler{
		store:     store,
		startedAt: time.Now(),
	}
}

// StatusResponse is the liveness probe response.
type StatusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Timestamp     string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Status handles the liveness probe endpoint
// GET /health
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy
// Returns 503 if any dependency is unhealthy
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkMirror(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// checkMirror verifies Redis connectivity using PING. A disabled mirror
// (single-instance mode) counts as healthy.
func (h *Handler) checkMirror(ctx context.Context) string {
	if h.store == nil {
		return "healthy"
	}

	if err := h.store.Ping(ctx); err != nil {
		logging.Error(ctx, "Mirror health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}
