package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Hub is the subscription surface the websocket endpoint needs from the
// broadcaster.
type Hub interface {
	Subscribe(conn *websocket.Conn, topics []string)
	Unsubscribe(conn *websocket.Conn)
	Publish(topic string, payload any)
}

var defaultTopics = []string{"presence", "alert", "status"}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Websocket upgrades the connection and subscribes it to the requested
// topics (?topics=presence,alert), defaulting to all of them. The read
// loop exists only to notice the peer going away.
func (h *Handler) Websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	topics := defaultTopics
	if raw := c.Query("topics"); raw != "" {
		topics = nil
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}
	h.hub.Subscribe(conn, topics)

	go func() {
		defer func() {
			h.hub.Unsubscribe(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
