package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weavetrack/erp-api/internal/jobs"
)

// Pinger checks that a backing store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StatsProvider exposes background worker statistics
type StatsProvider interface {
	GetStats() jobs.WorkerStats
}

type HealthHandler struct {
	db     Pinger
	worker StatsProvider
}

func NewHealthHandler(db Pinger, worker StatsProvider) *HealthHandler {
	return &HealthHandler{db: db, worker: worker}
}

// @Summary Health Check
// @Description Reports database reachability and worker statistics
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Index(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":  "ok",
		"service": "erp-api",
		"version": "1.0.0",
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unreachable"
		} else {
			body["database"] = "ok"
		}
	}
	if h.worker != nil {
		body["worker"] = h.worker.GetStats()
	}

	c.JSON(status, body)
}
