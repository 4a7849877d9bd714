package gateway_routers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/voice-gateway/config"
	internal_calllog "github.com/rapidaai/voice-gateway/internal/calllog"
	internal_session "github.com/rapidaai/voice-gateway/internal/session"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

// AdminRoutes binds the operational REST surface: live call inspection,
// operator-initiated hangups, and recent call history.
func AdminRoutes(
	cfg *config.AppConfig,
	engine *gin.Engine,
	logger commons.Logger,
	registry *internal_session.Registry,
	logs internal_calllog.Store,
) {
	apiv1 := engine.Group("api/v1", apiKeyGuard(cfg))
	{
		apiv1.GET("/calls", func(c *gin.Context) {
			sessions := registry.List()
			out := make([]internal_session.Snapshot, 0, len(sessions))
			for _, s := range sessions {
				out = append(out, s.Snapshot())
			}
			c.JSON(http.StatusOK, gin.H{"count": len(out), "calls": out})
		})

		apiv1.GET("/calls/:streamSid", func(c *gin.Context) {
			streamSid := c.Param("streamSid")
			if s, ok := registry.Get(streamSid); ok {
				c.JSON(http.StatusOK, s.Snapshot())
				return
			}
			if logs != nil {
				if record, err := logs.GetByStreamSid(c.Request.Context(), streamSid); err == nil {
					c.JSON(http.StatusOK, record)
					return
				}
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "no call with that streamSid"})
		})

		apiv1.POST("/calls/:streamSid/terminate", func(c *gin.Context) {
			streamSid := c.Param("streamSid")
			var body struct {
				Reason string `json:"reason"`
			}
			// Body is optional; an empty or absent reason gets the default.
			_ = c.ShouldBindJSON(&body)
			reason := strings.TrimSpace(body.Reason)
			if reason == "" {
				reason = "operator_terminate"
			}
			if !registry.Terminate(streamSid, reason) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no live call with that streamSid"})
				return
			}
			logger.Infow("operator terminated call", "streamSid", streamSid, "reason", reason)
			c.JSON(http.StatusAccepted, gin.H{"streamSid": streamSid, "status": "terminating"})
		})

		apiv1.GET("/call-logs", func(c *gin.Context) {
			if logs == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "call log store unavailable"})
				return
			}
			records, err := logs.Recent(c.Request.Context(), 0)
			if err != nil {
				logger.Errorf("failed to list call logs: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list call logs"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"count": len(records), "logs": records})
		})
	}
}

// apiKeyGuard enforces the admin key when one is configured. An empty key
// leaves the surface open, which is only acceptable for local development.
func apiKeyGuard(cfg *config.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := cfg.AdminConfig.ApiKey
		if key == "" {
			c.Next()
			return
		}
		if c.GetHeader(utils.HEADER_API_KEY) != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing api key"})
			return
		}
		c.Next()
	}
}
