package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports liveness, database reachability and timer counts.
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	dbState := "ok"
	if sqlDB, err := h.store.DB().DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status = http.StatusServiceUnavailable
		dbState = "unreachable"
	}

	c.JSON(status, gin.H{
		"status":          http.StatusText(status),
		"database":        dbState,
		"autoUpdateCount": h.coord.AutoUpdateCount(),
		"streamClients":   h.hub.ClientCount(),
	})
}
