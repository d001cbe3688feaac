package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// AnalysisEvent is one pipeline lifecycle update pushed to websocket
// clients. It mirrors the AMQP event envelope so both consumers see the
// same shape.
type AnalysisEvent struct {
	Event     string                 `json:"event"`
	CallID    string                 `json:"call_id"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// wsClient is one connected websocket consumer.
type wsClient struct {
	hub    *AnalysisHub
	conn   *websocket.Conn
	send   chan []byte
	logger *logrus.Logger

	// callID narrows the subscription to one call; empty means all events.
	callID string
}

// AnalysisHub fans pipeline events out to connected websocket clients. It
// implements the processor's EventPublisher interface, so it can be wired
// alongside the AMQP client.
type AnalysisHub struct {
	logger          *logrus.Logger
	clients         map[*wsClient]bool
	callSubscribers map[string]map[*wsClient]bool
	broadcast       chan *AnalysisEvent
	register        chan *wsClient
	unregister      chan *wsClient
	mutex           sync.RWMutex
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewAnalysisHub creates a hub. Run must be started before events flow.
func NewAnalysisHub(logger *logrus.Logger) *AnalysisHub {
	return &AnalysisHub{
		logger:          logger,
		clients:         make(map[*wsClient]bool),
		callSubscribers: make(map[string]map[*wsClient]bool),
		broadcast:       make(chan *AnalysisEvent, 64),
		register:        make(chan *wsClient),
		unregister:      make(chan *wsClient),
	}
}

// Run pumps registrations and broadcasts until ctx is cancelled.
func (h *AnalysisHub) Run(ctx context.Context) {
	h.logger.Info("Starting analysis WebSocket hub")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Shutting down analysis WebSocket hub")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			if client.callID != "" {
				if _, exists := h.callSubscribers[client.callID]; !exists {
					h.callSubscribers[client.callID] = make(map[*wsClient]bool)
				}
				h.callSubscribers[client.callID][client] = true
			}
			h.mutex.Unlock()
			h.logger.WithField("call_id", client.callID).Debug("WebSocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			h.dropClient(client)
			h.mutex.Unlock()
			h.logger.Debug("WebSocket client disconnected")

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.WithError(err).Error("Failed to encode analysis event")
				continue
			}

			h.mutex.Lock()
			if subscribers, exists := h.callSubscribers[event.CallID]; exists {
				for client := range subscribers {
					h.sendOrDrop(client, data)
				}
			}
			for client := range h.clients {
				// Call-scoped clients were already served above.
				if client.callID != "" {
					continue
				}
				h.sendOrDrop(client, data)
			}
			h.mutex.Unlock()
		}
	}
}

// sendOrDrop delivers to one client, dropping it when its buffer is full.
// Caller must hold the write lock.
func (h *AnalysisHub) sendOrDrop(client *wsClient, data []byte) {
	select {
	case client.send <- data:
	default:
		h.dropClient(client)
	}
}

// dropClient removes a client from every index. Caller must hold the write
// lock.
func (h *AnalysisHub) dropClient(client *wsClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	if client.callID != "" {
		if subscribers, exists := h.callSubscribers[client.callID]; exists {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.callSubscribers, client.callID)
			}
		}
	}
}

// PublishEvent queues an event for broadcast. It never blocks the analysis
// pipeline: when the hub is saturated the event is dropped.
func (h *AnalysisHub) PublishEvent(event, callID string, payload map[string]interface{}) error {
	message := &AnalysisEvent{
		Event:     event,
		CallID:    callID,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.WithFields(logrus.Fields{
			"event":   event,
			"call_id": callID,
		}).Warn("WebSocket broadcast buffer full, dropping event")
	}

	return nil
}

// ClientCount returns the number of connected clients.
func (h *AnalysisHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request into a hub subscription. The optional
// call_id query parameter scopes the subscription to one call.
func (h *AnalysisHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	client := &wsClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: h.logger,
		callID: r.URL.Query().Get("call_id"),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump pushes queued events to the connection, pinging to keep it
// alive.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(60 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames and unregisters the client when the
// connection goes away.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
