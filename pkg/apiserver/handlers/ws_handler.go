package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/livehub"
)

// LiveHandler upgrades /ws requests and hands the socket to the hub, which
// authenticates the token and closes with a specific code on failure.
type LiveHandler struct {
	hub          *livehub.Hub
	upgrader     *websocket.Upgrader
	writeTimeout time.Duration
	pongWait     time.Duration
	logger       *zap.Logger
}

func NewLiveHandler(hub *livehub.Hub, allowedOrigins []string, writeTimeout, pingInterval time.Duration, logger *zap.Logger) *LiveHandler {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &LiveHandler{
		hub:          hub,
		upgrader:     livehub.NewUpgrader(allowedOrigins),
		writeTimeout: writeTimeout,
		pongWait:     pingInterval * 2,
		logger:       logger.Named("ws"),
	}
}

func (h *LiveHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	transport := livehub.NewWebSocketTransport(conn, h.writeTimeout, h.pongWait)
	if _, err := h.hub.Connect(transport, c.Query("token"), c.Query("applicationId")); err != nil {
		h.logger.Debug("websocket connection rejected", zap.Error(err))
	}
}
