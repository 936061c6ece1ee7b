package handlers

import (
	"context"
	"net/http"

	"nexus-chat/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	DB Pinger
}

func (h *HealthHandler) Check(c *gin.Context) {
	if err := h.DB.PingContext(c.Request.Context()); err != nil {
		middleware.Logger(c).Error("database ping failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
