package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orderdesk/internal/observability/logger"
	"github.com/smallbiznis/orderdesk/internal/realtime"
	"go.uber.org/zap"
)

func (s *Server) GetRealtimeStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Stats())
}

// ServeWebSocket upgrades the request and hands the connection to the hub.
// A failed upgrade has already been answered by the upgrader.
func (s *Server) ServeWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	err := s.hub.Serve(s.upgrader, c.Writer, c.Request, func(client *realtime.Client) {
		c.Set(logger.ClientIDKey, client.ID())
		if s.feed != nil {
			s.feed.SendInitial(ctx, client)
		}
	})
	if err != nil {
		logger.FromContext(ctx).Warn("websocket upgrade failed", zap.Error(err))
	}
}
