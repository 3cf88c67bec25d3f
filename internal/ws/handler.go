package ws

import (
	"context"
	"net/http"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/logger"
	"github.com/vilass86/cardgame/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// SessionLookup loads committed session state.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
}

// HandleWS streams one session's events. The first frames are a ready
// handshake and a snapshot of the session.
func HandleWS(hub *Hub, sessions SessionLookup, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		address, err := service.ParseJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		sess, err := sessions.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "code": domain.CodeSessionNotFound})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws upgrade error", "error", err)
			return
		}

		client := NewClient(address, sess.ID, conn, hub)
		go client.Run(Message{Type: MsgReady}, Message{Type: MsgSnapshot, Session: sess})
	}
}
