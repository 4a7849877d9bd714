package gateway_routers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/voice-gateway/config"
	internal_session "github.com/rapidaai/voice-gateway/internal/session"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/connectors"
)

func HealthCheckRoutes(
	cfg *config.AppConfig,
	engine *gin.Engine,
	logger commons.Logger,
	database connectors.DatabaseConnector,
	registry *internal_session.Registry,
) {
	logger.Info("Internal HealthCheckRoutes and Connectors added to engine.")
	started := time.Now()
	apiv1 := engine.Group("")
	{
		apiv1.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":     cfg.Name,
				"version":     cfg.Version,
				"environment": cfg.Environment,
				"uptime":      time.Since(started).Round(time.Second).String(),
				"activeCalls": registry.Count(),
			})
		})

		apiv1.GET("/readiness", func(c *gin.Context) {
			if database != nil {
				if err := database.Ping(c.Request.Context()); err != nil {
					logger.Errorf("readiness probe failed: %v", err)
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
					return
				}
			}
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		})
	}
}
