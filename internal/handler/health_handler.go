package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seatsurge/booking-core/pkg/database"
	pkgredis "github.com/seatsurge/booking-core/pkg/redis"
)

// HealthHandler reports connectivity to the backing stores
type HealthHandler struct {
	db    *database.PostgresDB
	redis *pkgredis.Client
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.PostgresDB, redis *pkgredis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}

	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			checks["database"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "up"
		}
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
			// lock-store loss degrades but does not stop the service
			checks["redis"] = "down"
		} else {
			checks["redis"] = "up"
		}
	}

	c.JSON(status, gin.H{
		"status": http.StatusText(status),
		"checks": checks,
	})
}
