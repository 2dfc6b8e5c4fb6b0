package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/realtime"
	"chatrelay/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints: an audit pipeline check and
// a broker occupancy snapshot. Disabled outside development.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, broker *realtime.Broker, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.Entry{
			Action:    telemetry.ActionAuditTest,
			RequestID: requestIDFromContext(c),
			UserID:    userIDFromContext(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/realtime", func(c *gin.Context) {
		c.JSON(http.StatusOK, broker.Stats())
	})
}
