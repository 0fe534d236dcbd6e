package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"occupancy-monitor/internal/logging"
)

// Envelope is the wire frame sent to dashboard subscribers.
type Envelope struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Hub manages websocket subscriptions keyed by topic and fans published
// payloads out to every subscriber of that topic. Connections that fail
// a write are dropped.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*websocket.Conn]bool
	logger      *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// Subscribe registers a connection for the given topics.
func (h *Hub) Subscribe(conn *websocket.Conn, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		if _, ok := h.subscribers[topic]; !ok {
			h.subscribers[topic] = make(map[*websocket.Conn]bool)
		}
		h.subscribers[topic][conn] = true
	}
	h.logger.Infof("websocket subscribed to %v (topics now %d)", topics, len(h.subscribers))
}

// Unsubscribe removes a connection from every topic.
func (h *Hub) Unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, conns := range h.subscribers {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subscribers, topic)
		}
	}
}

// Publish sends the payload to all subscribers of the topic. Marshal
// and write failures never propagate to the caller.
func (h *Hub) Publish(topic string, payload any) {
	frame, err := json.Marshal(Envelope{Topic: topic, Timestamp: time.Now(), Payload: payload})
	if err != nil {
		h.logger.Errorf("failed to marshal broadcast payload for topic %s: %v", topic, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.subscribers[topic]
	if !ok {
		return
	}
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.logger.Errorf("failed to send broadcast on topic %s: %v", topic, err)
			delete(conns, conn)
			conn.Close()
		}
	}
	if len(conns) == 0 {
		delete(h.subscribers, topic)
	}
}
