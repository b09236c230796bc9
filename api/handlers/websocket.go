package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/uminmay/collaborative-ai-editor/internal/relay"
)

// WebSocketHandler handles editor WebSocket connections.
type WebSocketHandler struct {
	relay *relay.Handler
	log   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(relayHandler *relay.Handler, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		relay: relayHandler,
		log:   logger.With("component", "ws"),
	}
}

// Connect handles WS /ws?user=<name> - serves one editor connection.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if err := h.relay.HandleConnection(c.Writer, c.Request); err != nil {
		h.log.Warn("websocket connection failed", "error", err)
	}
}

// RegisterRoutes registers the WebSocket route on a Gin router.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Connect)
}
