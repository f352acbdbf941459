package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports readiness of the backing stores.
type HealthHandler struct {
	Pool  *pgxpool.Pool
	Redis redis.UniversalClient
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(pool *pgxpool.Pool, client redis.UniversalClient) *HealthHandler {
	return &HealthHandler{Pool: pool, Redis: client}
}

// Healthz pings Postgres and Redis with a short deadline.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if h.Pool != nil {
		if err := h.Pool.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": statusText(healthy), "checks": checks})
}

func statusText(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "degraded"
}
