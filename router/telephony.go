package gateway_routers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rapidaai/voice-gateway/config"
	internal_session "github.com/rapidaai/voice-gateway/internal/session"
	internal_telephony "github.com/rapidaai/voice-gateway/internal/telephony"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

var telephonyUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TelephonyRoutes binds the PBX media stream endpoint. Each accepted socket
// becomes one call session; the handler blocks for the life of the call, which
// is how gorilla websocket handlers are meant to run.
func TelephonyRoutes(
	cfg *config.AppConfig,
	engine *gin.Engine,
	logger commons.Logger,
	deps internal_session.Dependencies,
) {
	engine.GET("/ws/telephony", func(c *gin.Context) {
		conn, err := telephonyUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Errorf("WebSocket upgrade failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to upgrade to WebSocket"})
			return
		}

		adapter := internal_telephony.NewAdapter(logger, conn)
		session := internal_session.NewCallSession(logger, cfg, adapter, c.Request.URL.Query(), deps)
		session.Run(c.Request.Context())
	})
}
