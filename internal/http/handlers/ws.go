package handlers

import (
	"context"
	"net/http"

	"nexus-chat/internal/chat"
	"nexus-chat/internal/http/middleware"
	"nexus-chat/internal/ws"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
)

type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*chat.Identity, error)
}

type WSHandler struct {
	Hub                  *ws.Hub
	Identity             IdentityResolver
	WSInsecureSkipVerify bool
}

// Handle upgrades the request and keeps the connection subscribed to the
// requested channel until the peer goes away. Browsers cannot set an
// Authorization header on websocket requests, so the token travels in the
// query string.
func (h *WSHandler) Handle(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
		return
	}

	id, err := h.Identity.Resolve(c.Request.Context(), tokenStr)
	if err != nil {
		middleware.Logger(c).Info("rejected subscription", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}

	channel := c.DefaultQuery("channel", chat.Channel)
	if channel != chat.Channel {
		c.JSON(http.StatusNotFound, gin.H{"message": "unknown channel"})
		return
	}

	opts := &websocket.AcceptOptions{}
	// Dev frontends are usually served from another origin.
	if h.WSInsecureSkipVerify {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		return // Accept already wrote the error response
	}

	// Push only. Reading still has to run so control frames are handled;
	// the returned context ends when the peer disconnects.
	ctx := conn.CloseRead(c.Request.Context())

	client := h.Hub.Subscribe(channel, conn)
	defer h.Hub.Unsubscribe(client)
	middleware.Logger(c).Debug("subscribed", "user_id", id.UserID, "channel", channel)

	<-ctx.Done()
}
